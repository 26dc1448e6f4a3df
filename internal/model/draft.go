// Package model defines the course draft and the records exchanged with the
// remote course service.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// NewDraftKey is the key of the draft for a course that does not exist yet.
const NewDraftKey = "new"

type ContentType string

const (
	ContentVideo ContentType = "video"
	ContentText  ContentType = "text"
	ContentQuiz  ContentType = "quiz"
)

// Purpose tells the transfer endpoint what an uploaded file is for.
type Purpose string

const (
	PurposeThumbnail   Purpose = "thumbnail"
	PurposeIntroVideo  Purpose = "intro_video"
	PurposeLessonVideo Purpose = "lesson_video"
)

const (
	SlotThumbnail  = "thumbnail"
	SlotIntroVideo = "intro_video"
)

// LessonVideoSlot names the side-table slot of a lesson video.
func LessonVideoSlot(module, lesson int) string {
	return fmt.Sprintf("lesson_video/%d/%d", module, lesson)
}

// KeyFor derives the draft key of an entity.
func KeyFor(entityID *int64) string {
	if entityID == nil {
		return NewDraftKey
	}
	return strconv.FormatInt(*entityID, 10)
}

// EntityIDFromKey is the inverse of KeyFor.
func EntityIDFromKey(key string) (*int64, error) {
	if key == NewDraftKey {
		return nil, nil
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || KeyFor(&id) != key {
		return nil, fmt.Errorf("invalid draft key %q", key)
	}
	return &id, nil
}

type FormValues struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description,omitempty"`
	CategoryID       *int64   `json:"category_id,omitempty"`
	Level            string   `json:"level,omitempty"`
	Language         string   `json:"language,omitempty"`
	Price            float64  `json:"price"`
	IsFree           bool     `json:"is_free"`
	IsPublished      bool     `json:"is_published"`
	Requirements     []string `json:"requirements,omitempty"`
	Outcomes         []string `json:"outcomes,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	ThumbnailURL     string   `json:"thumbnail_url,omitempty"`
	IntroVideoURL    string   `json:"intro_video_url,omitempty"`
}

type Lesson struct {
	ID              *int64      `json:"id,omitempty"`
	Title           string      `json:"title"`
	ContentType     ContentType `json:"content_type"`
	VideoURL        string      `json:"video_url,omitempty"`
	LessonText      string      `json:"lesson_text,omitempty"`
	QuizID          *int64      `json:"quiz_id,omitempty"`
	DurationMinutes float64     `json:"duration_minutes"`
	IsFinalQuiz     bool        `json:"is_final_quiz"`

	// VideoFile is set while the lesson video is still local.
	VideoFile *FileRef `json:"video_file,omitempty"`
}

type Module struct {
	ID      *int64   `json:"id,omitempty"`
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

// Draft is one in-progress edit of one course.
type Draft struct {
	Key      string `json:"key"`
	EntityID *int64 `json:"entity_id,omitempty"`

	// Slug of the existing remote course, used to address updates.
	Slug string `json:"slug,omitempty"`

	Form    FormValues `json:"form"`
	Modules []Module   `json:"modules"`

	ThumbnailFile  *FileRef `json:"thumbnail_file,omitempty"`
	IntroVideoFile *FileRef `json:"intro_video_file,omitempty"`

	NeedsSubmission bool      `json:"needs_submission"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DerivedKey returns the key the draft is stored under.
func (d *Draft) DerivedKey() string {
	return KeyFor(d.EntityID)
}

// FileRefs lists pending files in upload order: thumbnail, intro video, then
// lesson videos in module/lesson order. Slots are positional, so the returned
// refs carry the slot of where they sit now.
func (d *Draft) FileRefs() []FileRef {
	var refs []FileRef
	if d.ThumbnailFile != nil {
		ref := *d.ThumbnailFile
		ref.Slot = SlotThumbnail
		refs = append(refs, ref)
	}
	if d.IntroVideoFile != nil {
		ref := *d.IntroVideoFile
		ref.Slot = SlotIntroVideo
		refs = append(refs, ref)
	}
	for i, m := range d.Modules {
		for j, l := range m.Lessons {
			if l.VideoFile != nil {
				ref := *l.VideoFile
				ref.Slot = LessonVideoSlot(i, j)
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// Clone returns a deep copy so callers never share nested slices with the store.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.EntityID = cloneInt(d.EntityID)
	c.Form = d.Form.clone()
	c.ThumbnailFile = d.ThumbnailFile.clone()
	c.IntroVideoFile = d.IntroVideoFile.clone()
	if d.Modules != nil {
		c.Modules = make([]Module, len(d.Modules))
		for i, m := range d.Modules {
			c.Modules[i] = m.clone()
		}
	}
	return &c
}

func (f FormValues) clone() FormValues {
	f.CategoryID = cloneInt(f.CategoryID)
	f.Requirements = cloneStrings(f.Requirements)
	f.Outcomes = cloneStrings(f.Outcomes)
	f.Tags = cloneStrings(f.Tags)
	return f
}

func (m Module) clone() Module {
	m.ID = cloneInt(m.ID)
	if m.Lessons != nil {
		lessons := make([]Lesson, len(m.Lessons))
		for i, l := range m.Lessons {
			l.ID = cloneInt(l.ID)
			l.QuizID = cloneInt(l.QuizID)
			l.VideoFile = l.VideoFile.clone()
			lessons[i] = l
		}
		m.Lessons = lessons
	}
	return m
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Int64 is a convenience for optional ids.
func Int64(v int64) *int64 {
	return &v
}

// AttachFile places ref at the location named by slot.
func (d *Draft) AttachFile(slot string, ref *FileRef) error {
	p, err := d.locate(slot)
	if err != nil {
		return err
	}
	*p = ref
	return nil
}

// ResolveFile records the uploaded URL for slot and drops its placeholder.
func (d *Draft) ResolveFile(slot, url string) error {
	switch slot {
	case SlotThumbnail:
		d.Form.ThumbnailURL = url
		d.ThumbnailFile = nil
		return nil
	case SlotIntroVideo:
		d.Form.IntroVideoURL = url
		d.IntroVideoFile = nil
		return nil
	}

	m, l, err := parseLessonSlot(slot)
	if err != nil {
		return err
	}
	if m >= len(d.Modules) || l >= len(d.Modules[m].Lessons) {
		return fmt.Errorf("slot %s out of range", slot)
	}
	lesson := &d.Modules[m].Lessons[l]
	lesson.VideoURL = url
	lesson.VideoFile = nil
	return nil
}

func (d *Draft) locate(slot string) (**FileRef, error) {
	switch slot {
	case SlotThumbnail:
		return &d.ThumbnailFile, nil
	case SlotIntroVideo:
		return &d.IntroVideoFile, nil
	}

	m, l, err := parseLessonSlot(slot)
	if err != nil {
		return nil, err
	}
	if m >= len(d.Modules) || l >= len(d.Modules[m].Lessons) {
		return nil, fmt.Errorf("slot %s out of range", slot)
	}
	return &d.Modules[m].Lessons[l].VideoFile, nil
}

func parseLessonSlot(slot string) (module, lesson int, err error) {
	if _, err := fmt.Sscanf(slot, "lesson_video/%d/%d", &module, &lesson); err != nil {
		return 0, 0, fmt.Errorf("unknown file slot %q", slot)
	}
	if module < 0 || lesson < 0 || LessonVideoSlot(module, lesson) != slot {
		return 0, 0, fmt.Errorf("unknown file slot %q", slot)
	}
	return module, lesson, nil
}

// PurposeOf maps a slot to the upload purpose.
func PurposeOf(slot string) Purpose {
	switch slot {
	case SlotThumbnail:
		return PurposeThumbnail
	case SlotIntroVideo:
		return PurposeIntroVideo
	}
	return PurposeLessonVideo
}
