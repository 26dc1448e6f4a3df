package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/payload"
	"github.com/debemdeboas/coursesync/internal/theme"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} (preview)</title>
<style>{{.CSS}}</style>
</head>
<body>
<article class="course-preview">
<header>
<h1>{{.Title}}</h1>
<p class="slug">{{.Slug}}</p>
{{with .ShortDescription}}<p class="short-description">{{.}}</p>{{end}}
{{if .NeedsSubmission}}<p class="status pending">Waiting for submission</p>{{end}}
</header>
<section class="media">
<p>Thumbnail: {{template "media" .Thumbnail}}</p>
<p>Intro video: {{template "media" .IntroVideo}}</p>
</section>
<section class="description">{{.Description}}</section>
{{range .Modules}}<section class="module">
<h2>{{.Position}}. {{.Title}}</h2>
<ol>
{{range .Lessons}}<li class="lesson lesson-{{.ContentType}}">
<h3>{{.Title}}{{if .IsFinalQuiz}} (final quiz){{end}}</h3>
<p class="meta">{{.ContentType}}{{with .Duration}} · {{.}}{{end}}</p>
{{if eq .ContentType "video"}}<p>Video: {{template "media" .Video}}</p>{{end}}
{{if eq .ContentType "quiz"}}<p>Quiz #{{.QuizID}}</p>{{end}}
{{.Body}}
</li>
{{end}}</ol>
</section>
{{end}}</article>
</body>
</html>
{{define "media"}}{{if .URL}}<a href="{{.URL}}">{{.URL}}</a>{{else if .Pending}}<em>pending upload of {{.Pending}}</em>{{else}}none{{end}}{{end}}
`))

type previewMedia struct {
	URL     string
	Pending string
}

type previewLesson struct {
	Title       string
	ContentType model.ContentType
	Duration    string
	IsFinalQuiz bool
	QuizID      int64
	Video       previewMedia
	Body        template.HTML
}

type previewModule struct {
	Position int
	Title    string
	Lessons  []previewLesson
}

type previewData struct {
	Title            string
	Slug             string
	ShortDescription string
	NeedsSubmission  bool
	CSS              template.CSS
	Thumbnail        previewMedia
	IntroVideo       previewMedia
	Description      template.HTML
	Modules          []previewModule
}

func media(url string, pending *model.FileRef) previewMedia {
	m := previewMedia{URL: url}
	if pending != nil {
		m.Pending = pending.Name
	}
	return m
}

// Preview renders d as a standalone HTML page. Descriptions and text lessons
// are markdown.
func Preview(d *model.Draft, syntaxTheme string) ([]byte, error) {
	data := previewData{
		Title:            d.Form.Title,
		Slug:             payload.UpdateSlug(d),
		ShortDescription: d.Form.ShortDescription,
		NeedsSubmission:  d.NeedsSubmission,
		CSS:              theme.GenerateSyntaxCSS(syntaxTheme),
		Thumbnail:        media(d.Form.ThumbnailURL, d.ThumbnailFile),
		IntroVideo:       media(d.Form.IntroVideoURL, d.IntroVideoFile),
		Description:      template.HTML(RenderMarkdownCached([]byte(d.Form.Description), syntaxTheme)),
	}
	if data.Title == "" {
		data.Title = "Untitled course"
	}

	for i, m := range d.Modules {
		pm := previewModule{Position: i + 1, Title: m.Title}
		for _, l := range m.Lessons {
			pl := previewLesson{
				Title:       l.Title,
				ContentType: l.ContentType,
				IsFinalQuiz: l.IsFinalQuiz,
				Video:       media(l.VideoURL, l.VideoFile),
			}
			if l.DurationMinutes > 0 {
				pl.Duration = fmt.Sprintf("%g min", l.DurationMinutes)
			}
			if l.QuizID != nil {
				pl.QuizID = *l.QuizID
			}
			if l.ContentType == model.ContentText {
				pl.Body = template.HTML(RenderMarkdownCached([]byte(l.LessonText), syntaxTheme))
			}
			pm.Lessons = append(pm.Lessons, pl)
		}
		data.Modules = append(data.Modules, pm)
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render preview of %s: %w", d.Key, err)
	}
	return buf.Bytes(), nil
}
