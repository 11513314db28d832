package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"emlwatch/internal/logging"
)

func TestAdmitRefusedOnceShutdownBegins(t *testing.T) {
	root := t.TempDir()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	proc := ProcessorFunc(func(context.Context, string) error {
		entered <- struct{}{}
		<-release
		return nil
	})
	d := New(Options{Workers: 1, Oracle: NewOracle("inbox", ".in", ".out")}, proc, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	if !d.Admit(filepath.Join(root, "inbox", "busy.in")) {
		t.Fatal("expected first candidate to be admitted")
	}
	<-entered
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for !d.queue.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("queue still open after cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if d.Admit(filepath.Join(root, "inbox", "late.in")) {
		t.Fatal("expected admission to be refused while the active worker drains")
	}
	stats := d.Stats()
	if stats.Admitted != 1 || stats.Queued != 0 || stats.InFlight != 1 || stats.Busy != 1 {
		t.Fatalf("unexpected stats while draining %+v", stats)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	stats = d.Stats()
	if stats.Processed != 1 || stats.Abandoned != 0 || stats.InFlight != 0 {
		t.Fatalf("unexpected stats after shutdown %+v", stats)
	}
}
