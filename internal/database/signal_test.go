package database

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := SetupSignalHandler(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled immediately")
	default:
	}
}

func TestSetupSignalHandler_ParentCancel(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	ctx, cancel := SetupSignalHandler(parent)
	defer cancel()

	parentCancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Context should follow its parent")
	}
}

func TestSignalCancelsContext(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping signal test in CI environment")
	}

	received := make(chan os.Signal, 1)
	ctx, cancel := SetupSignalHandlerWithCallback(context.Background(), func(sig os.Signal) {
		received <- sig
	})
	defer cancel()

	time.Sleep(10 * time.Millisecond)
	_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Context was not cancelled after SIGTERM")
	}

	select {
	case sig := <-received:
		if sig != syscall.SIGTERM {
			t.Errorf("expected SIGTERM, got %v", sig)
		}
	default:
		t.Error("callback was not invoked")
	}
}
