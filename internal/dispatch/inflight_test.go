package dispatch

import (
	"testing"

	"pgregory.net/rapid"
)

// TestInFlightAdmissionProperties drives the in-flight set with random
// acquire, release and complete operations and checks it against a model.
func TestInFlightAdmissionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		paths := []string{"/r/inbox/a.in", "/r/inbox/b.in", "/r/x/inbox/c.in"}
		set := NewInFlight()
		completed := map[string]bool{}
		model := map[string]bool{}
		isCompleted := func(path string) bool { return completed[path] }

		t.Repeat(map[string]func(*rapid.T){
			"acquire": func(t *rapid.T) {
				path := rapid.SampledFrom(paths).Draw(t, "path")
				want := !model[path] && !completed[path]
				if got := set.TryAcquire(path, isCompleted); got != want {
					t.Fatalf("TryAcquire(%s) = %v, want %v", path, got, want)
				}
				if want {
					model[path] = true
				}
			},
			"release": func(t *rapid.T) {
				path := rapid.SampledFrom(paths).Draw(t, "path")
				set.Release(path)
				delete(model, path)
			},
			"complete": func(t *rapid.T) {
				path := rapid.SampledFrom(paths).Draw(t, "path")
				completed[path] = true
			},
			"": func(t *rapid.T) {
				if set.Len() != len(model) {
					t.Fatalf("len = %d, model = %d", set.Len(), len(model))
				}
				for _, path := range paths {
					if set.Contains(path) != model[path] {
						t.Fatalf("Contains(%s) = %v, model %v", path, set.Contains(path), model[path])
					}
				}
			},
		})
	})
}

// TestQueueNeverHoldsDuplicates admits random candidate sequences through a
// dispatcher without workers and checks that each pending path is queued once.
func TestQueueNeverHoldsDuplicates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := New(Options{Workers: 1, Oracle: NewOracle("inbox", ".in", ".out")}, nil, nil)
		names := rapid.SliceOf(rapid.SampledFrom([]string{"1", "2", "3", "4"})).Draw(t, "names")
		distinct := map[string]bool{}
		for _, name := range names {
			path := "/nonexistent/inbox/" + name + ".in"
			admitted := d.Admit(path)
			if admitted == distinct[path] {
				t.Fatalf("Admit(%s) = %v after %d prior admits", path, admitted, len(distinct))
			}
			distinct[path] = true
		}
		queued := d.queue.Drain()
		if len(queued) != len(distinct) {
			t.Fatalf("queued %d entries for %d distinct paths", len(queued), len(distinct))
		}
		seen := map[string]bool{}
		for _, path := range queued {
			if seen[path] {
				t.Fatalf("duplicate queue entry %s", path)
			}
			seen[path] = true
		}
	})
}
