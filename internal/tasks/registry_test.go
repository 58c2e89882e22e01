package tasks

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

func TestRegistry(t *testing.T) {
	t.Run("PutAndGet", func(t *testing.T) {
		r := NewRegistry()
		r.Put(models.NewTaskState("task_1", models.StatusPending, 0, "created"))
		r.Put(models.NewTaskState("task_1", models.StatusStarted, 0, "started"))

		got, err := r.Get("task_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != models.StatusStarted {
			t.Errorf("expected latest status started, got %s", got.Status)
		}
		if r.Len() != 1 {
			t.Errorf("expected 1 task, got %d", r.Len())
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Get("missing")
		if !errors.Is(err, shared.ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		r := NewRegistry()
		if !r.PutIfAbsent(models.NewTaskState("task_1", models.StatusPending, 0, "")) {
			t.Fatal("first insert should succeed")
		}
		if r.PutIfAbsent(models.NewTaskState("task_1", models.StatusFailed, 0, "")) {
			t.Fatal("second insert should be refused")
		}
		got, _ := r.Get("task_1")
		if got.Status != models.StatusPending {
			t.Errorf("existing state was overwritten: %s", got.Status)
		}
	})

	t.Run("ListIsSortedSnapshot", func(t *testing.T) {
		r := NewRegistry()
		for _, id := range []string{"task_3", "task_1", "task_2"} {
			r.Put(models.NewTaskState(id, models.StatusPending, 0, ""))
		}

		list := r.List()
		if len(list) != 3 {
			t.Fatalf("expected 3 tasks, got %d", len(list))
		}
		for i, want := range []string{"task_1", "task_2", "task_3"} {
			if list[i].TaskID != want {
				t.Errorf("position %d: expected %s, got %s", i, want, list[i].TaskID)
			}
		}

		list[0].Message = "changed"
		if got, _ := r.Get("task_1"); got.Message == "changed" {
			t.Error("List should return copies")
		}
	})

	t.Run("EvictOnlyOldTerminal", func(t *testing.T) {
		r := NewRegistry()
		now := time.Now()
		old := now.Add(-time.Hour)

		states := []models.TaskState{
			{TaskID: "done_old", Status: models.StatusCompleted, UpdatedAt: old},
			{TaskID: "failed_old", Status: models.StatusFailed, UpdatedAt: old},
			{TaskID: "done_new", Status: models.StatusCompleted, UpdatedAt: now},
			{TaskID: "running_old", Status: models.StatusProcessing, UpdatedAt: old},
		}
		for _, s := range states {
			r.Put(s)
		}

		evicted := r.Evict(now.Add(-time.Minute))
		if len(evicted) != 2 {
			t.Fatalf("expected 2 evictions, got %v", evicted)
		}
		for _, id := range []string{"done_new", "running_old"} {
			if _, err := r.Get(id); err != nil {
				t.Errorf("%s should remain: %v", id, err)
			}
		}
		for _, id := range []string{"done_old", "failed_old"} {
			if _, err := r.Get(id); err == nil {
				t.Errorf("%s should be evicted", id)
			}
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup

		for w := range 16 {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				id := fmt.Sprintf("task_%d", w)
				for p := 0; p <= 100; p++ {
					r.Put(models.NewTaskState(id, models.StatusProcessing, p, ""))
					if _, err := r.Get(id); err != nil {
						t.Errorf("get during writes: %v", err)
						return
					}
					_ = r.List()
				}
			}(w)
		}
		wg.Wait()

		if r.Len() != 16 {
			t.Fatalf("expected 16 tasks, got %d", r.Len())
		}
		for w := range 16 {
			got, _ := r.Get(fmt.Sprintf("task_%d", w))
			if got.Progress != 100 {
				t.Errorf("task_%d: expected final progress 100, got %d", w, got.Progress)
			}
		}
	})
}
