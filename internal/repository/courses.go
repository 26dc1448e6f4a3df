// Package repository caches the remote course listing.
package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/cache"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/util"
)

var repoLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

// CourseSource fetches the full course listing from the remote service.
type CourseSource interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
}

// CourseRepository serves the course listing from memory. The listing is
// fetched on first use and again after Invalidate.
type CourseRepository struct {
	source CourseSource

	coursesCache       *cache.Cache[string, *model.Course]
	coursesCacheSorted []model.Course
	hashes             map[string]string

	mu     sync.Mutex
	loaded bool

	reloadNotifier func(slug string)
}

func NewCourseRepository(source CourseSource) *CourseRepository {
	return &CourseRepository{
		source:       source,
		coursesCache: cache.NewCache[string, *model.Course](),
		hashes:       make(map[string]string),
	}
}

// SetReloadNotifier sets a function called for every course whose content
// changed between two fetches.
func (r *CourseRepository) SetReloadNotifier(notifier func(slug string)) {
	r.reloadNotifier = notifier
}

// List returns the cached listing, fetching it when stale.
func (r *CourseRepository) List(ctx context.Context) ([]model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		if err := r.reload(ctx); err != nil {
			return nil, err
		}
	}
	return slices.Clone(r.coursesCacheSorted), nil
}

func (r *CourseRepository) Get(ctx context.Context, slug string) (*model.Course, error) {
	if _, err := r.List(ctx); err != nil {
		return nil, err
	}
	c, ok := r.coursesCache.Get(slug)
	if !ok {
		return nil, fmt.Errorf("course not found: %s", slug)
	}
	return c, nil
}

// Invalidate marks the listing stale so the next List refetches it.
func (r *CourseRepository) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
	repoLogger.Debug().Msg("Course listing invalidated")
}

// Reload fetches the listing now.
func (r *CourseRepository) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reload(ctx)
}

func (r *CourseRepository) reload(ctx context.Context) error {
	courses, err := r.source.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("error listing courses: %w", err)
	}

	slices.SortStableFunc(courses, func(a, b model.Course) int {
		return cmp.Compare(a.Title, b.Title)
	})

	courseMap := make(map[string]*model.Course, len(courses))
	hashes := make(map[string]string, len(courses))
	for i := range courses {
		c := &courses[i]
		courseMap[c.Slug] = c
		hashes[c.Slug] = util.ContentHash(c.Raw)

		if prev, ok := r.hashes[c.Slug]; ok && prev != hashes[c.Slug] {
			repoLogger.Info().Str("slug", c.Slug).Str("title", c.Title).Msg("Course changed")
			if r.reloadNotifier != nil {
				go r.reloadNotifier(c.Slug)
			}
		}
	}

	r.coursesCacheSorted = courses
	r.coursesCache.SetTo(courseMap)
	r.hashes = hashes
	r.loaded = true
	return nil
}

// Watch refetches the listing every interval until ctx is done.
func (r *CourseRepository) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				repoLogger.Error().Err(err).Msg("Error reloading courses")
			}
		}
	}
}
