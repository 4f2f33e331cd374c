// Package process finds and cleans up agent CLI processes left behind by
// a crashed host, so a restart never competes with orphans for file locks.
package process

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"

	osexec "os/exec"

	"github.com/tidegui/tide-core/exec"
	"github.com/tidegui/tide-core/logger"
)

// discoveryTimeout bounds the pgrep/ps round trips.
const discoveryTimeout = 5 * time.Second

// AgentProcess is a running agent CLI process found on the system.
type AgentProcess struct {
	PID     int    // Process ID
	Command string // Full command line
}

// FindAgentProcesses finds running headless invocations of the given agent
// command. Only stream-json invocations match; an interactive agent the
// user launched by hand in some terminal is left alone.
func FindAgentProcesses(command string) ([]AgentProcess, error) {
	return findWith(exec.GetDefaultExecutor(), command)
}

func findWith(executor exec.CommandExecutor, command string) ([]AgentProcess, error) {
	var processes []AgentProcess
	log := logger.WithComponent("process")

	if runtime.GOOS != "darwin" && runtime.GOOS != "linux" {
		return processes, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	output, err := executor.Output(ctx, "", "pgrep", "-f", command+".*--output-format stream-json")
	if err != nil {
		// pgrep exits 1 when nothing matched.
		if exitErr, ok := err.(*osexec.ExitError); ok && exitErr.ExitCode() == 1 {
			return processes, nil
		}
		return nil, err
	}

	for _, pidStr := range strings.Fields(string(output)) {
		pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
		if err != nil {
			continue
		}

		psOutput, err := executor.Output(ctx, "", "ps", "-p", pidStr, "-o", "args=")
		if err != nil {
			continue
		}

		processes = append(processes, AgentProcess{
			PID:     pid,
			Command: strings.TrimSpace(string(psOutput)),
		})
	}

	log.Debug("found agent processes", "count", len(processes))
	return processes, nil
}

// KillProcess kills a process by PID.
func KillProcess(pid int) error {
	return killWith(exec.GetDefaultExecutor(), pid)
}

func killWith(executor exec.CommandExecutor, pid int) error {
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()
	_, _, err := executor.Run(ctx, "", "kill", "-9", strconv.Itoa(pid))
	return err
}

// FindOrphaned finds agent processes resuming a conversation whose
// external session id is not in knownSessionIDs. A fresh turn with no
// resume flag carries no id and is never treated as an orphan.
func FindOrphaned(command string, knownSessionIDs map[string]bool) ([]AgentProcess, error) {
	return findOrphanedWith(exec.GetDefaultExecutor(), command, knownSessionIDs)
}

func findOrphanedWith(executor exec.CommandExecutor, command string, knownSessionIDs map[string]bool) ([]AgentProcess, error) {
	all, err := findWith(executor, command)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("process")
	var orphans []AgentProcess
	for _, proc := range all {
		sessionID := extractResumeID(proc.Command)
		if sessionID != "" && !knownSessionIDs[sessionID] {
			orphans = append(orphans, proc)
			log.Info("found orphaned agent process", "pid", proc.PID, "externalSessionID", sessionID)
		}
	}
	return orphans, nil
}

// extractResumeID pulls the external session id out of a command line.
func extractResumeID(cmdLine string) string {
	_, after, ok := strings.Cut(cmdLine, "--resume")
	if !ok {
		return ""
	}
	fields := strings.Fields(strings.TrimLeft(after, " ="))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// CleanupOrphaned kills every orphaned agent process and returns the
// number killed. Kill failures are logged and skipped, not fatal.
func CleanupOrphaned(command string, knownSessionIDs map[string]bool) (int, error) {
	return cleanupOrphanedWith(exec.GetDefaultExecutor(), command, knownSessionIDs)
}

func cleanupOrphanedWith(executor exec.CommandExecutor, command string, knownSessionIDs map[string]bool) (int, error) {
	orphans, err := findOrphanedWith(executor, command, knownSessionIDs)
	if err != nil {
		return 0, err
	}

	log := logger.WithComponent("process")
	killed := 0
	for _, proc := range orphans {
		log.Info("killing orphaned agent process", "pid", proc.PID)
		if err := killWith(executor, proc.PID); err != nil {
			log.Error("failed to kill process", "pid", proc.PID, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
