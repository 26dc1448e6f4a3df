// Package draftfile reads a course draft from a markdown file whose "%%%"
// fenced TOML front matter carries the form values and modules. The markdown
// body becomes the course description.
//
//	%%%
//	title = "Go Basics"
//	intro_video = "media/intro.mp4"
//
//	[[modules]]
//	title = "Getting started"
//
//	  [[modules.lessons]]
//	  title = "Hello"
//	  type = "text"
//	  text_file = "lessons/hello.md"
//	%%%
//	Learn Go from scratch.
//
// Local media paths are relative to the draft file.
package draftfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/util"
)

type FrontMatter struct {
	EntityID *int64 `toml:"entity_id"`
	Slug     string `toml:"slug"`

	Title            string   `toml:"title"`
	ShortDescription string   `toml:"short_description"`
	CategoryID       *int64   `toml:"category_id"`
	Level            string   `toml:"level"`
	Language         string   `toml:"language"`
	Price            float64  `toml:"price"`
	IsFree           bool     `toml:"is_free"`
	IsPublished      bool     `toml:"is_published"`
	Requirements     []string `toml:"requirements"`
	Outcomes         []string `toml:"outcomes"`
	Tags             []string `toml:"tags"`

	Thumbnail     string `toml:"thumbnail"`
	ThumbnailURL  string `toml:"thumbnail_url"`
	IntroVideo    string `toml:"intro_video"`
	IntroVideoURL string `toml:"intro_video_url"`

	Modules []Module `toml:"modules"`
}

type Module struct {
	ID      *int64   `toml:"id"`
	Title   string   `toml:"title"`
	Lessons []Lesson `toml:"lessons"`
}

type Lesson struct {
	ID              *int64  `toml:"id"`
	Title           string  `toml:"title"`
	Type            string  `toml:"type"`
	Text            string  `toml:"text"`
	TextFile        string  `toml:"text_file"`
	Video           string  `toml:"video"`
	VideoURL        string  `toml:"video_url"`
	QuizID          *int64  `toml:"quiz_id"`
	DurationMinutes float64 `toml:"duration_minutes"`
	FinalQuiz       bool    `toml:"final_quiz"`
}

// Parse decodes the front matter and body of data.
func Parse(data []byte) (*FrontMatter, string, error) {
	front, body, err := util.SplitFrontMatter(data)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.KindValidation, "draft file has no %%% front matter")
	}

	var fm FrontMatter
	md, err := toml.Decode(string(front), &fm)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.KindValidation, "failed to decode front matter")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, "", apperr.Newf(apperr.KindValidation, "unknown front matter keys: %s", strings.Join(keys, ", "))
	}
	return &fm, strings.TrimSpace(string(body)), nil
}

// Import is a draft read from disk with the local files it references.
type Import struct {
	Draft *model.Draft
	Files map[string]model.File

	closers []io.Closer
}

// Close releases the opened media files. Call it once the store no longer
// needs the binaries.
func (im *Import) Close() error {
	var errs []error
	for _, c := range im.closers {
		errs = append(errs, c.Close())
	}
	im.closers = nil
	return errors.Join(errs...)
}

// Load reads the draft file at path and opens every local media file it
// references.
func Load(path string) (*Import, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fm, body, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	im := &Import{Files: make(map[string]model.File)}
	dir := filepath.Dir(path)
	open := func(slot, rel string) error {
		if rel == "" {
			return nil
		}
		p := rel
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, rel)
		}
		f, closer, err := model.OpenFile(p)
		if err != nil {
			return apperr.Wrap(err, apperr.KindUpload, "cannot open "+rel).WithMeta("slot", slot)
		}
		im.closers = append(im.closers, closer)
		im.Files[slot] = f
		return nil
	}
	readText := func(rel string) (string, error) {
		p := rel
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, rel)
		}
		b, err := os.ReadFile(p)
		return string(b), err
	}

	d, err := fm.toDraft(body, readText)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := open(model.SlotThumbnail, fm.Thumbnail); err != nil {
		im.Close()
		return nil, err
	}
	if err := open(model.SlotIntroVideo, fm.IntroVideo); err != nil {
		im.Close()
		return nil, err
	}
	for i, m := range fm.Modules {
		for j, l := range m.Lessons {
			if err := open(model.LessonVideoSlot(i, j), l.Video); err != nil {
				im.Close()
				return nil, err
			}
		}
	}

	im.Draft = d
	return im, nil
}

func (fm *FrontMatter) toDraft(description string, readText func(string) (string, error)) (*model.Draft, error) {
	d := &model.Draft{
		EntityID: fm.EntityID,
		Slug:     fm.Slug,
		Form: model.FormValues{
			Title:            fm.Title,
			Description:      description,
			ShortDescription: fm.ShortDescription,
			CategoryID:       fm.CategoryID,
			Level:            fm.Level,
			Language:         fm.Language,
			Price:            fm.Price,
			IsFree:           fm.IsFree,
			IsPublished:      fm.IsPublished,
			Requirements:     fm.Requirements,
			Outcomes:         fm.Outcomes,
			Tags:             fm.Tags,
			ThumbnailURL:     fm.ThumbnailURL,
			IntroVideoURL:    fm.IntroVideoURL,
		},
	}
	d.Key = d.DerivedKey()

	for i, m := range fm.Modules {
		mod := model.Module{ID: m.ID, Title: m.Title}
		for j, l := range m.Lessons {
			lesson := model.Lesson{
				ID:              l.ID,
				Title:           l.Title,
				ContentType:     model.ContentType(l.Type),
				VideoURL:        l.VideoURL,
				QuizID:          l.QuizID,
				DurationMinutes: l.DurationMinutes,
				IsFinalQuiz:     l.FinalQuiz,
				LessonText:      l.Text,
			}
			where := fmt.Sprintf("module %d lesson %d", i+1, j+1)
			switch lesson.ContentType {
			case model.ContentVideo, model.ContentQuiz:
			case model.ContentText:
				if l.TextFile != "" {
					text, err := readText(l.TextFile)
					if err != nil {
						return nil, apperr.Wrap(err, apperr.KindValidation, where+": cannot read text_file")
					}
					lesson.LessonText = strings.TrimSpace(text)
				}
			case "":
				return nil, apperr.New(apperr.KindValidation, where+": missing type")
			default:
				return nil, apperr.Newf(apperr.KindValidation, "%s: unknown type %q", where, l.Type)
			}
			if l.Video != "" && lesson.ContentType != model.ContentVideo {
				return nil, apperr.Newf(apperr.KindValidation, "%s: video set on a %s lesson", where, l.Type)
			}
			mod.Lessons = append(mod.Lessons, lesson)
		}
		d.Modules = append(d.Modules, mod)
	}
	return d, nil
}
