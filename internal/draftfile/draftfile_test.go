package draftfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
)

const sample = `%%%
entity_id = 42
slug = "go-basics"
title = "Go Basics"
category_id = 3
price = 19.9
tags = ["go", "beginner"]
thumbnail = "media/thumb.png"
intro_video = "media/intro.mp4"

[[modules]]
id = 1
title = "Getting started"

  [[modules.lessons]]
  id = 10
  title = "Hello"
  type = "text"
  text_file = "lessons/hello.md"
  duration_minutes = 2.5

  [[modules.lessons]]
  title = "Setup"
  type = "video"
  video = "media/setup.mp4"

[[modules]]
title = "Check"

  [[modules.lessons]]
  title = "Quiz"
  type = "quiz"
  quiz_id = 7
  final_quiz = true
%%%

Learn **Go** from scratch.
`

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "course.md"), []byte(sample))
	writeFile(t, filepath.Join(dir, "media/thumb.png"), []byte("png"))
	writeFile(t, filepath.Join(dir, "media/intro.mp4"), make([]byte, 1024))
	writeFile(t, filepath.Join(dir, "media/setup.mp4"), make([]byte, 2048))
	writeFile(t, filepath.Join(dir, "lessons/hello.md"), []byte("# Hello\n\nfmt.Println\n"))

	im, err := Load(filepath.Join(dir, "course.md"))
	require.NoError(t, err)
	defer im.Close()

	d := im.Draft
	assert.Equal(t, "42", d.Key)
	assert.Equal(t, int64(42), *d.EntityID)
	assert.Equal(t, "go-basics", d.Slug)
	assert.Equal(t, "Go Basics", d.Form.Title)
	assert.Equal(t, "Learn **Go** from scratch.", d.Form.Description)
	assert.Equal(t, []string{"go", "beginner"}, d.Form.Tags)

	require.Len(t, d.Modules, 2)
	hello := d.Modules[0].Lessons[0]
	assert.Equal(t, model.ContentText, hello.ContentType)
	assert.Equal(t, "# Hello\n\nfmt.Println", hello.LessonText)
	assert.Equal(t, 2.5, hello.DurationMinutes)
	assert.Equal(t, int64(7), *d.Modules[1].Lessons[0].QuizID)
	assert.True(t, d.Modules[1].Lessons[0].IsFinalQuiz)

	require.Len(t, im.Files, 3)
	assert.Equal(t, int64(3), im.Files[model.SlotThumbnail].Size)
	assert.Equal(t, int64(1024), im.Files[model.SlotIntroVideo].Size)
	setup := im.Files[model.LessonVideoSlot(0, 1)]
	assert.Equal(t, "setup.mp4", setup.Name)
	assert.Equal(t, int64(2048), setup.Size)

	require.NoError(t, im.Close())
}

func TestLoadMissingMedia(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "course.md"), []byte("%%%\ntitle = \"x\"\nintro_video = \"nope.mp4\"\n%%%\n"))

	_, err := Load(filepath.Join(dir, "course.md"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpload, apperr.Classify(err))
	assert.Contains(t, err.Error(), "nope.mp4")
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		contains string
	}{
		{name: "no front matter", input: "# Title only", contains: "front matter"},
		{name: "bad toml", input: "%%%\ntitle = \n%%%\n", contains: "decode"},
		{name: "unknown key", input: "%%%\ntitel = \"typo\"\n%%%\n", contains: "titel"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tc.input))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.Classify(err))
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestLessonTypeErrors(t *testing.T) {
	testCases := []struct {
		name     string
		lesson   string
		contains string
	}{
		{name: "missing type", lesson: "title = \"a\"", contains: "missing type"},
		{name: "unknown type", lesson: "title = \"a\"\ntype = \"podcast\"", contains: "unknown type"},
		{name: "video on text", lesson: "title = \"a\"\ntype = \"text\"\nvideo = \"a.mp4\"", contains: "video set on a text lesson"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			input := "%%%\ntitle = \"x\"\n[[modules]]\ntitle = \"m\"\n[[modules.lessons]]\n" + tc.lesson + "\n%%%\n"
			writeFile(t, filepath.Join(dir, "course.md"), []byte(input))

			_, err := Load(filepath.Join(dir, "course.md"))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.Classify(err))
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}
