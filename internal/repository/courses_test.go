package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/coursesync/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	courses []model.Course
	calls   int
	err     error
}

func (f *fakeSource) ListCourses(context.Context) ([]model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Course, len(f.courses))
	copy(out, f.courses)
	return out, nil
}

func course(id int64, slug, title string) model.Course {
	c := model.Course{ID: id, Slug: slug, Title: title}
	c.Raw, _ = json.Marshal(c)
	return c
}

func TestCourseRepository_CachesUntilInvalidated(t *testing.T) {
	src := &fakeSource{courses: []model.Course{course(2, "zig", "Zig"), course(1, "go", "Go")}}
	repo := NewCourseRepository(src)
	ctx := context.Background()

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Slug != "go" || list[1].Slug != "zig" {
		t.Fatalf("Expected listing sorted by title, got %+v", list)
	}

	if _, err := repo.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("Expected 1 fetch, got %d", src.calls)
	}

	repo.Invalidate()
	if _, err := repo.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("Expected refetch after Invalidate, got %d fetches", src.calls)
	}
}

func TestCourseRepository_Get(t *testing.T) {
	repo := NewCourseRepository(&fakeSource{courses: []model.Course{course(2, "zig", "Zig"), course(1, "go", "Go")}})
	ctx := context.Background()

	c, err := repo.Get(ctx, "zig")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.ID != 2 {
		t.Errorf("Expected course 2, got %d", c.ID)
	}

	if _, err := repo.Get(ctx, "rust"); err == nil {
		t.Error("Expected error for unknown course")
	}
}

func TestCourseRepository_ErrorKeepsStale(t *testing.T) {
	src := &fakeSource{err: errors.New("offline")}
	repo := NewCourseRepository(src)

	if _, err := repo.List(context.Background()); err == nil {
		t.Fatal("Expected error")
	}

	src.err = nil
	src.courses = []model.Course{course(1, "go", "Go")}
	list, err := repo.List(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("Expected recovery, got %v %v", list, err)
	}
}

func TestCourseRepository_ReloadNotifier(t *testing.T) {
	src := &fakeSource{courses: []model.Course{course(1, "go", "Go")}}
	repo := NewCourseRepository(src)

	changed := make(chan string, 1)
	repo.SetReloadNotifier(func(slug string) { changed <- slug })

	if err := repo.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	src.mu.Lock()
	src.courses = []model.Course{course(1, "go", "Go, revised")}
	src.mu.Unlock()
	if err := repo.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	select {
	case slug := <-changed:
		if slug != "go" {
			t.Errorf("Expected change for go, got %s", slug)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected reload notification")
	}
}

func TestCourseRepository_Watch(t *testing.T) {
	src := &fakeSource{}
	repo := NewCourseRepository(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		repo.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		src.mu.Lock()
		calls := src.calls
		src.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Expected periodic reloads")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
