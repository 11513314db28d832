package fileutil

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPublishAtomicRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "1.tmp")
	final := filepath.Join(dir, "1.docx")

	err := PublishAtomic(tmp, final, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello world")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone, stat err=%v", err)
	}
}

func TestPublishAtomicLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "1.tmp")
	final := filepath.Join(dir, "1.docx")
	boom := errors.New("render failed")

	err := PublishAtomic(tmp, final, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected render error, got %v", err)
	}
	for _, path := range []string{tmp, final} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be absent, stat err=%v", path, err)
		}
	}
}

func TestWaitForFileSeesLateArrival(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mail.eml")
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("x"), 0o644)
	}()
	if !WaitForFile(context.Background(), path, 2*time.Second, 10*time.Millisecond) {
		t.Fatal("expected file to appear")
	}
}

func TestWaitForFileGivesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.eml")
	start := time.Now()
	if WaitForFile(context.Background(), path, 50*time.Millisecond, 10*time.Millisecond) {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("returned before the timeout elapsed")
	}
}

func TestWaitForFileStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if WaitForFile(ctx, filepath.Join(t.TempDir(), "x"), time.Hour, time.Millisecond) {
		t.Fatal("expected false on canceled context")
	}
}
