package model

import "encoding/json"

// Course is the remote representation returned by the course endpoints.
type Course struct {
	ID    int64  `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`

	Raw json.RawMessage `json:"-"`
}
