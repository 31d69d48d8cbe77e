package cli

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func signalSelf(t *testing.T, sig os.Signal) {
	t.Helper()
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess() error = %v", err)
	}
	if err := p.Signal(sig); err != nil {
		t.Fatalf("Signal(%v) error = %v", sig, err)
	}
}

// TestSetupSignalHandler tests that the context stays active until a
// shutdown signal arrives and is canceled by the first one.
func TestSetupSignalHandler(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping signal test in short mode")
	}

	ctx := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Fatal("context canceled before any signal")
	case <-time.After(10 * time.Millisecond):
	}

	signalSelf(t, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after SIGTERM")
	}
}

// TestNotifyReload tests that SIGHUP triggers a reload while the context is
// active.
func TestNotifyReload(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping signal test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan struct{}, 4)
	NotifyReload(ctx, func() { reloads <- struct{}{} })

	for i := 0; i < 2; i++ {
		signalSelf(t, syscall.SIGHUP)
		select {
		case <-reloads:
		case <-time.After(2 * time.Second):
			t.Fatalf("reload %d not triggered by SIGHUP", i+1)
		}
	}
}

// TestNotifyReloadStops tests that no reload runs after the context ends.
func TestNotifyReloadStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan struct{}, 1)
	NotifyReload(ctx, func() { reloads <- struct{}{} })
	cancel()

	select {
	case <-reloads:
		t.Error("reload called without a signal")
	case <-time.After(20 * time.Millisecond):
	}
}
