package signals

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstall_SIGINTCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	stop := Install(cancel)
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after SIGINT")
	}
	assert.Error(t, context.Cause(ctx))
}

func TestInstall_StopUnregistersWithoutCancelling(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	stop := Install(cancel)
	stop()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled by Stop alone")
	case <-time.After(50 * time.Millisecond):
	}
}
