package dispatch_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"emlwatch/internal/dispatch"
	"emlwatch/internal/logging"
)

type recordingAdmitter struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingAdmitter) Admit(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return true
}

func (r *recordingAdmitter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.paths)
}

func TestScannerAdmitsOnlyPendingCandidatesInTargetDirs(t *testing.T) {
	root := t.TempDir()
	oracle := testOracle()
	pending := filepath.Join(root, "a", "inbox", "1.in")
	done := filepath.Join(root, "a", "inbox", "2.in")
	nested := filepath.Join(root, "b", "c", "inbox", "3.in")
	writeFile(t, pending)
	writeFile(t, done)
	writeFile(t, oracle.ArtifactPath(done))
	writeFile(t, nested)
	writeFile(t, filepath.Join(root, "a", "outbox", "4.in"))
	writeFile(t, filepath.Join(root, "a", "inbox", "sub", "5.in"))
	writeFile(t, filepath.Join(root, "a", "inbox", "6.txt"))

	admitter := &recordingAdmitter{}
	scanner := dispatch.NewScanner(root, time.Hour, oracle, admitter, logging.NewNop())
	result, err := scanner.ScanOnce(context.Background(), dispatch.ScanManual)
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}

	got := admitter.snapshot()
	slices.Sort(got)
	want := []string{pending, nested}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("admitted %v, want %v", got, want)
	}
	if result.Examined != 3 || result.Completed != 1 || result.Admitted != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	list, err := scanner.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	slices.Sort(list)
	if !slices.Equal(list, want) {
		t.Fatalf("pending %v, want %v", list, want)
	}
}

func TestScannerSkipsUnreadableSubtree(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	root := t.TempDir()
	readable := filepath.Join(root, "ok", "inbox", "1.in")
	writeFile(t, readable)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "inbox", "2.in"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	admitter := &recordingAdmitter{}
	scanner := dispatch.NewScanner(root, time.Hour, testOracle(), admitter, logging.NewNop())
	if _, err := scanner.ScanOnce(context.Background(), dispatch.ScanManual); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if got := admitter.snapshot(); !slices.Equal(got, []string{readable}) {
		t.Fatalf("admitted %v", got)
	}
}

func TestScannerRunFailsWhenRootMissing(t *testing.T) {
	scanner := dispatch.NewScanner(filepath.Join(t.TempDir(), "missing"), time.Hour, testOracle(), &recordingAdmitter{}, logging.NewNop())
	if err := scanner.Run(context.Background()); err == nil {
		t.Fatal("expected startup scan failure")
	}
}

func TestScannerRunScansAtStartupAndOnTrigger(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "inbox", "1.in")
	writeFile(t, first)

	admitter := &recordingAdmitter{}
	scanner := dispatch.NewScanner(root, time.Hour, testOracle(), admitter, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Run(ctx) }()

	waitFor(t, "startup scan", func() bool { return len(admitter.snapshot()) == 1 })

	second := filepath.Join(root, "inbox", "2.in")
	writeFile(t, second)
	scanner.Trigger()
	waitFor(t, "triggered scan", func() bool { return slices.Contains(admitter.snapshot(), second) })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop after cancellation")
	}
}

func TestScannerRunRepeatsOnInterval(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "inbox", "1.in"))

	admitter := &recordingAdmitter{}
	scanner := dispatch.NewScanner(root, 20*time.Millisecond, testOracle(), admitter, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = scanner.Run(ctx) }()

	waitFor(t, "repeated scans", func() bool { return len(admitter.snapshot()) >= 3 })
}
