package prompt

import (
	"os"
	"testing"

	"github.com/tidegui/tide-core/logger"
)

func TestMain(m *testing.M) {
	// Keep test logs out of the real log directory.
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}
