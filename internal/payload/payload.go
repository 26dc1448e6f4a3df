// Package payload turns a draft whose files have been uploaded into the
// request body of the course endpoints.
package payload

import (
	"math"

	"github.com/debemdeboas/coursesync/internal/model"
)

type Course struct {
	CourseID *int64 `json:"course_id,omitempty"`
	Slug     string `json:"slug"`

	Title            string   `json:"title" validate:"required"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description,omitempty"`
	CategoryID       *int64   `json:"category_id,omitempty"`
	Level            string   `json:"level,omitempty"`
	Language         string   `json:"language,omitempty"`
	Price            float64  `json:"price" validate:"gte=0"`
	IsFree           bool     `json:"is_free"`
	IsPublished      bool     `json:"is_published"`
	Requirements     []string `json:"requirements"`
	Outcomes         []string `json:"outcomes"`
	Tags             []string `json:"tags"`
	ThumbnailURL     string   `json:"thumbnail_url,omitempty"`
	IntroVideoURL    string   `json:"intro_video_url,omitempty"`

	Modules []Module `json:"modules" validate:"dive"`
}

type Module struct {
	ID            *int64   `json:"id,omitempty"`
	Title         string   `json:"title" validate:"required"`
	OrderPosition int      `json:"order_position"`
	Lessons       []Lesson `json:"lessons" validate:"dive"`
}

// Lesson carries exactly one of VideoURL, LessonText or QuizID, chosen by
// ContentType.
type Lesson struct {
	ID              *int64            `json:"id,omitempty"`
	Title           string            `json:"title" validate:"required"`
	ContentType     model.ContentType `json:"content_type" validate:"oneof=video text quiz"`
	VideoURL        *string           `json:"video_url,omitempty"`
	LessonText      *string           `json:"lesson_text,omitempty"`
	QuizID          *int64            `json:"quiz_id,omitempty"`
	DurationSeconds int64             `json:"duration_seconds" validate:"gte=0"`
	OrderPosition   int               `json:"order_position"`
	IsFinalQuiz     bool              `json:"is_final_quiz"`
}

// Build maps d onto the course request body. It does no I/O; file URLs must
// already be written into d.
func Build(d *model.Draft) *Course {
	f := d.Form
	c := &Course{
		Slug:             Slugify(f.Title),
		Title:            f.Title,
		Description:      f.Description,
		ShortDescription: f.ShortDescription,
		CategoryID:       f.CategoryID,
		Level:            f.Level,
		Language:         f.Language,
		Price:            f.Price,
		IsFree:           f.IsFree,
		IsPublished:      f.IsPublished,
		Requirements:     nonNil(f.Requirements),
		Outcomes:         nonNil(f.Outcomes),
		Tags:             nonNil(f.Tags),
		ThumbnailURL:     f.ThumbnailURL,
		IntroVideoURL:    f.IntroVideoURL,
		Modules:          make([]Module, 0, len(d.Modules)),
	}
	if d.EntityID != nil {
		id := *d.EntityID
		c.CourseID = &id
	}

	for i, m := range d.Modules {
		mod := Module{
			ID:            m.ID,
			Title:         m.Title,
			OrderPosition: i + 1,
			Lessons:       make([]Lesson, 0, len(m.Lessons)),
		}
		for j, l := range m.Lessons {
			mod.Lessons = append(mod.Lessons, buildLesson(l, j+1))
		}
		c.Modules = append(c.Modules, mod)
	}
	return c
}

func buildLesson(l model.Lesson, position int) Lesson {
	out := Lesson{
		ID:              l.ID,
		Title:           l.Title,
		ContentType:     l.ContentType,
		DurationSeconds: int64(math.Round(l.DurationMinutes * 60)),
		OrderPosition:   position,
		IsFinalQuiz:     l.IsFinalQuiz,
	}
	switch l.ContentType {
	case model.ContentVideo:
		url := l.VideoURL
		out.VideoURL = &url
	case model.ContentText:
		text := l.LessonText
		out.LessonText = &text
	case model.ContentQuiz:
		out.QuizID = l.QuizID
	}
	return out
}

// UpdateSlug is the slug addressing an update: the draft's stored slug, or
// the one derived from the title.
func UpdateSlug(d *model.Draft) string {
	if d.Slug != "" {
		return d.Slug
	}
	return Slugify(d.Form.Title)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
