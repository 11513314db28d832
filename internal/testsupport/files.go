package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// MkdirAll creates dir and its parents.
func MkdirAll(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

// WriteString writes content to path, creating parent directories.
func WriteString(t testing.TB, path, content string) {
	t.Helper()
	MkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRecord writes a minimal envelope record under recordKey with the
// given start time and optional companion name.
func WriteRecord(t testing.TB, path, recordKey, startTime, companion string) {
	t.Helper()
	filename := ""
	if companion != "" {
		filename = `, "filename": "` + companion + `"`
	}
	WriteString(t, path, `{"data": {"`+recordKey+`": [{"start_time": "`+startTime+`"`+filename+`, "meta": {}}]}}`)
}
