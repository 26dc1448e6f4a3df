// Package util provides content hashing and front matter splitting.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/gomarkdown/markdown"
)

var ErrNoFrontMatter = errors.New("invalid front matter format")

var frontMatterDelimiter = []byte("%%%")

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// SplitFrontMatter separates a leading block fenced by "%%%" lines from the
// markdown body. Leading blank lines are ignored; anything else before the
// opening fence is an error.
func SplitFrontMatter(md []byte) (front, body []byte, err error) {
	md = markdown.NormalizeNewlines(md)
	md = bytes.TrimLeft(md, "\n \t\r")

	if !bytes.HasPrefix(md, frontMatterDelimiter) {
		return nil, nil, ErrNoFrontMatter
	}
	rest := md[len(frontMatterDelimiter):]
	nl := bytes.IndexByte(rest, '\n')
	if nl == -1 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, nil, ErrNoFrontMatter
	}
	rest = rest[nl+1:]

	var end int
	if bytes.HasPrefix(rest, frontMatterDelimiter) {
		end = 0
	} else {
		i := bytes.Index(rest, append([]byte{'\n'}, frontMatterDelimiter...))
		if i == -1 {
			return nil, nil, ErrNoFrontMatter
		}
		end = i + 1
	}

	front = rest[:end]
	line, body, found := bytes.Cut(rest[end+len(frontMatterDelimiter):], []byte{'\n'})
	if len(bytes.TrimSpace(line)) != 0 {
		return nil, nil, ErrNoFrontMatter
	}
	if !found {
		body = nil
	}
	return front, body, nil
}
