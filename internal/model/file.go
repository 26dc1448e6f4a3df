package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileRef is the serializable placeholder for a local binary. The binary
// itself never leaves memory.
type FileRef struct {
	Slot        string `json:"slot"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

func (f *FileRef) clone() *FileRef {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// File is a local binary waiting to be uploaded.
type File struct {
	Name string
	Size int64
	Data io.ReaderAt

	release func() error
}

// Release frees whatever backs the file once no draft slot holds it.
func (f File) Release() error {
	if f.release == nil {
		return nil
	}
	return f.release()
}

// Same reports whether f and g share the same backing data.
func (f File) Same(g File) bool {
	return f.Data == g.Data
}

// Ref builds the placeholder stored in the draft for this file.
func (f File) Ref(slot string) *FileRef {
	return &FileRef{Slot: slot, Name: f.Name, Size: f.Size}
}

// BytesFile wraps an in-memory payload.
func BytesFile(name string, data []byte) File {
	return File{Name: name, Size: int64(len(data)), Data: bytes.NewReader(data)}
}

// OpenFile opens path for upload. The caller closes the returned file once the
// draft no longer needs it.
func OpenFile(path string) (File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, err
	}
	if info.IsDir() {
		f.Close()
		return File{}, nil, fmt.Errorf("%s is a directory", path)
	}
	return File{Name: filepath.Base(path), Size: info.Size(), Data: f}, f, nil
}

// SpoolFile copies r into a temporary file under dir (os.TempDir when empty).
// Release removes the file from disk; the descriptor stays readable until it
// is garbage collected, so uploads already reading it finish.
func SpoolFile(dir, name string, r io.Reader) (File, error) {
	tmp, err := os.CreateTemp(dir, "coursesync-*"+filepath.Ext(name))
	if err != nil {
		return File{}, err
	}
	remove := func() error {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		remove()
		return File{}, err
	}
	return File{Name: filepath.Base(name), Size: size, Data: tmp, release: remove}, nil
}
