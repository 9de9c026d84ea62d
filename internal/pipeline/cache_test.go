package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"drainwatch/internal/models"
)

func result(id string) *Result {
	return &Result{Reading: models.Reading{ID: id}}
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	const capacity = 10
	c := NewCache(capacity)

	for i := 0; i < capacity+7; i++ {
		c.Append(result(fmt.Sprintf("r-%03d", i)))
	}

	if c.Len() != capacity {
		t.Fatalf("len = %d, want %d", c.Len(), capacity)
	}

	window := c.Snapshot(0)
	if len(window) != capacity {
		t.Fatalf("snapshot len = %d, want %d", len(window), capacity)
	}
	// oldest surviving entry is r-007, newest r-016
	if window[0].Reading.ID != "r-007" {
		t.Fatalf("oldest = %q, want r-007", window[0].Reading.ID)
	}
	if window[capacity-1].Reading.ID != "r-016" {
		t.Fatalf("newest = %q, want r-016", window[capacity-1].Reading.ID)
	}
}

func TestCacheSnapshotWindow(t *testing.T) {
	c := NewCache(100)
	for i := 0; i < 30; i++ {
		c.Append(result(fmt.Sprintf("r-%03d", i)))
	}

	window := c.Snapshot(5)
	if len(window) != 5 {
		t.Fatalf("snapshot len = %d, want 5", len(window))
	}
	for i, want := range []string{"r-025", "r-026", "r-027", "r-028", "r-029"} {
		if window[i].Reading.ID != want {
			t.Fatalf("window[%d] = %q, want %q", i, window[i].Reading.ID, want)
		}
	}

	// asking for more than cached returns everything, in arrival order
	all := c.Snapshot(1000)
	if len(all) != 30 {
		t.Fatalf("snapshot len = %d, want 30", len(all))
	}
	if all[0].Reading.ID != "r-000" {
		t.Fatalf("first = %q, want r-000", all[0].Reading.ID)
	}
}

func TestCacheEmptySnapshot(t *testing.T) {
	c := NewCache(10)
	if got := c.Snapshot(5); len(got) != 0 {
		t.Fatalf("snapshot of empty cache len = %d, want 0", len(got))
	}
}

func TestCacheConcurrentAppendAndSnapshot(t *testing.T) {
	c := NewCache(64)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Append(result(fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				window := c.Snapshot(32)
				for _, entry := range window {
					if entry == nil {
						t.Error("snapshot returned nil entry")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if c.Len() != 64 {
		t.Fatalf("len = %d, want 64 after saturation", c.Len())
	}
}
