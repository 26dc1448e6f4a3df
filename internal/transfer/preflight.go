package transfer

import (
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
)

const sniffLen = 3072

func (c *Client) preflight(file model.File, purpose model.Purpose) error {
	if file.Data == nil {
		return apperr.Newf(apperr.KindUpload, "%s has no data attached", file.Name)
	}
	if file.Size <= 0 {
		return apperr.Newf(apperr.KindFileSize, "%s is empty", file.Name).
			WithMeta("file", file.Name)
	}
	if c.opts.MaxFileSize > 0 && file.Size > c.opts.MaxFileSize {
		return apperr.Newf(apperr.KindFileSize, "%s is %d bytes, limit is %d", file.Name, file.Size, c.opts.MaxFileSize).
			WithMeta("file", file.Name)
	}
	if !c.opts.CheckTypes {
		return nil
	}

	mt, err := DetectType(file)
	if err != nil {
		return apperr.Wrap(err, apperr.KindUpload, "read "+file.Name)
	}
	want := wantedPrefix(purpose)
	if want != "" && !strings.HasPrefix(mt, want) {
		return apperr.Newf(apperr.KindFileType, "%s is %s, expected %s*", file.Name, mt, want).
			WithMeta("file", file.Name)
	}
	return nil
}

// DetectType sniffs the content type from the first bytes of the file.
func DetectType(file model.File) (string, error) {
	mt, err := mimetype.DetectReader(io.NewSectionReader(file.Data, 0, min(file.Size, sniffLen)))
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}

func wantedPrefix(purpose model.Purpose) string {
	switch purpose {
	case model.PurposeThumbnail:
		return "image/"
	case model.PurposeIntroVideo, model.PurposeLessonVideo:
		return "video/"
	}
	return ""
}
