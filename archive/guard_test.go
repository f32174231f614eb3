package archive

import (
	"errors"
	"testing"
)

func TestGuard_RejectsConcurrent(t *testing.T) {
	var g Guard
	release, err := g.Acquire("pack")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Acquire("unpack"); !errors.Is(err, ErrOperationInProgress) {
		t.Fatalf("second Acquire err = %v, want ErrOperationInProgress", err)
	}
	release()
	release2, err := g.Acquire("unpack")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}

func TestGuard_Close(t *testing.T) {
	var g Guard
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if !g.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := g.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close err = %v, want ErrClosed", err)
	}
	if _, err := g.Acquire("pack"); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close err = %v, want ErrClosed", err)
	}
}
