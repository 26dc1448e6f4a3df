// Package routes defines the HTTP routes of the coursesync daemon.
package routes

import (
	"net/url"
	"strings"
)

// Patterns for http.ServeMux.
const (
	Health = "GET /healthz"

	// SSE
	SSEPath = "/sse"

	// Drafts
	Drafts       = "GET /drafts"
	Draft        = "GET /drafts/{key}"
	CommitDraft  = "PUT /drafts/{key}"
	DiscardDraft = "DELETE /drafts/{key}"
	AttachFile   = "POST /drafts/{key}/files/{slot...}"
	RetryDraft   = "POST /drafts/{key}/retry"
	PreviewDraft = "GET /drafts/{key}/preview"

	// Remote listing
	Courses = "GET /courses"

	SyntaxTheme = "GET /syntax-theme/{theme}"
)

// DraftPath builds the path of a draft resource. Extra elements are appended
// as path segments.
func DraftPath(key string, elems ...string) string {
	parts := append([]string{"/drafts", url.PathEscape(key)}, elems...)
	return strings.Join(parts, "/")
}
