package heap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateTIDsIncludesSelf(t *testing.T) {
	tids, err := enumerateTIDs()
	require.NoError(t, err)
	assert.Contains(t, tids, os.Getpid(), "the main thread's tid equals the pid for a single-threaded process")
}

func TestNudgePeerThreadsNoopWhenDisabled(t *testing.T) {
	a := getSharedAllocator(t)
	prev := a.cfg.HandleStopSignal
	a.cfg.HandleStopSignal = false
	defer func() { a.cfg.HandleStopSignal = prev }()
	a.nudgePeerThreads() // must not send SIGURG to anything, must not panic
}
