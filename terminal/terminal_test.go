package terminal

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidegui/tide-core/agent"
)

type recorder struct {
	mu     sync.Mutex
	data   map[int]*strings.Builder
	exited map[int]int
	exitCh chan int
}

func newRecorder() *recorder {
	return &recorder{
		data:   make(map[int]*strings.Builder),
		exited: make(map[int]int),
		exitCh: make(chan int, 16),
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnData: func(id int, chunk string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.data[id] == nil {
				r.data[id] = &strings.Builder{}
			}
			r.data[id].WriteString(chunk)
		},
		OnExit: func(id, code int) {
			r.mu.Lock()
			r.exited[id] = code
			r.mu.Unlock()
			r.exitCh <- id
		},
	}
}

func (r *recorder) output(id int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.data[id]; b != nil {
		return b.String()
	}
	return ""
}

func (r *recorder) waitExit(t *testing.T, id int) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-r.exitCh:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("terminal %d never exited", id)
		}
	}
}

func newTestManager(t *testing.T) (*Manager, *recorder) {
	t.Helper()
	rec := newRecorder()
	mgr := NewManager(agent.NewSupervisor(), rec.callbacks())
	t.Cleanup(mgr.CloseAll)
	return mgr, rec
}

func TestCreateAndEcho(t *testing.T) {
	mgr, rec := newTestManager(t)

	term, err := mgr.Create(t.TempDir(), "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !mgr.Write(term.ID, "echo tide-ok\n") {
		t.Fatal("Write() = false for a live terminal")
	}
	mgr.Write(term.ID, "exit\n")
	rec.waitExit(t, term.ID)

	if got := rec.output(term.ID); !strings.Contains(got, "tide-ok") {
		t.Errorf("terminal output missing echo result: %q", got)
	}
}

func TestIDsAreMonotonicAndNeverReused(t *testing.T) {
	mgr, rec := newTestManager(t)

	first, err := mgr.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mgr.Kill(first.ID)
	rec.waitExit(t, first.ID)

	second, err := mgr.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("id %d reused or regressed after %d", second.ID, first.ID)
	}
}

func TestControlBytesPassThrough(t *testing.T) {
	mgr, rec := newTestManager(t)

	term, err := mgr.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Ctrl-D at an empty shell prompt ends the session.
	mgr.Write(term.ID, "\x04")
	rec.waitExit(t, term.ID)

	if mgr.Get(term.ID) != nil {
		t.Error("terminal still registered after exit")
	}
}

func TestResizeDeadTerminalIsNoOp(t *testing.T) {
	mgr, rec := newTestManager(t)

	term, err := mgr.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !mgr.Resize(term.ID, 120, 40) {
		t.Error("Resize() = false for a live terminal")
	}

	mgr.Kill(term.ID)
	rec.waitExit(t, term.ID)

	if mgr.Resize(term.ID, 80, 24) {
		t.Error("Resize() = true for a dead terminal")
	}
	if mgr.Write(term.ID, "late\n") {
		t.Error("Write() = true for a dead terminal")
	}
}

func TestKillUnknownIDReturnsFalse(t *testing.T) {
	mgr, _ := newTestManager(t)
	if mgr.Kill(999) {
		t.Error("Kill() = true for an unknown id")
	}
}

func TestCloseAll(t *testing.T) {
	mgr, rec := newTestManager(t)

	a, err := mgr.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	b, err := mgr.Create("", "/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	mgr.CloseAll()
	rec.waitExit(t, a.ID)
	rec.waitExit(t, b.ID)

	if mgr.Count() != 0 {
		t.Errorf("Count() = %d after CloseAll, want 0", mgr.Count())
	}
}

func TestInstantExitLeavesNoEntry(t *testing.T) {
	mgr, rec := newTestManager(t)

	// A shell that exits the moment it starts can fire its exit callback
	// while Create is still running; the entry must still end up removed.
	term, err := mgr.Create("", "/bin/true", 80, 24)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec.waitExit(t, term.ID)

	deadline := time.After(5 * time.Second)
	for mgr.Get(term.ID) != nil {
		select {
		case <-deadline:
			t.Fatalf("terminal %d still registered after exit", term.ID)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if mgr.Count() != 0 {
		t.Errorf("Count() = %d after instant exit, want 0", mgr.Count())
	}
	if mgr.Write(term.ID, "late\n") {
		t.Error("Write() = true for an exited terminal")
	}
}

func TestFailedSpawnLeavesNoEntry(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.Create("", "/nonexistent/not-a-shell", 80, 24); err == nil {
		t.Fatal("Create() succeeded for a missing shell")
	}
	if mgr.Count() != 0 {
		t.Errorf("Count() = %d after failed create, want 0", mgr.Count())
	}
}
