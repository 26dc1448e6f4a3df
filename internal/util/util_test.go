package util

import (
	"errors"
	"testing"
)

func TestSplitFrontMatter(t *testing.T) {
	testCases := []struct {
		name        string
		markdown    string
		expectError bool
		front       string
		body        string
	}{
		{
			name:     "Valid Front Matter",
			markdown: "%%%\ntitle = \"Hello World\"\n%%%\n# Content",
			front:    "title = \"Hello World\"\n",
			body:     "# Content",
		},
		{
			name:     "Windows Newlines",
			markdown: "%%%\r\ntitle = \"Hello\"\r\n%%%\r\nBody\r\n",
			front:    "title = \"Hello\"\n",
			body:     "Body\n",
		},
		{
			name:     "Extra Whitespace",
			markdown: "\n\n  %%%\n\ntitle = \"Hello World\"\n\n%%%\n# Content",
			front:    "\ntitle = \"Hello World\"\n\n",
			body:     "# Content",
		},
		{
			name:     "Empty Front Matter",
			markdown: "%%%\n%%%\nBody",
			front:    "",
			body:     "Body",
		},
		{
			name:     "No Body",
			markdown: "%%%\ntitle = \"x\"\n%%%",
			front:    "title = \"x\"\n",
			body:     "",
		},
		{
			name:        "No Front Matter",
			markdown:    "# Just Content\nNo front matter here.",
			expectError: true,
		},
		{
			name:        "Empty File",
			markdown:    "",
			expectError: true,
		},
		{
			name:        "Content Before Front Matter",
			markdown:    "\n# This should be ignored\n%%%\ntitle = \"Hello World\"\n%%%\n# Content",
			expectError: true,
		},
		{
			name:        "Unterminated",
			markdown:    "%%%\ntitle = \"Incomplete\n# Content",
			expectError: true,
		},
		{
			name:        "Only Delimiters",
			markdown:    "%%% %%%",
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			front, body, err := SplitFrontMatter([]byte(tc.markdown))

			if tc.expectError {
				if !errors.Is(err, ErrNoFrontMatter) {
					t.Errorf("Expected ErrNoFrontMatter, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, but got: %v", err)
			}
			if string(front) != tc.front {
				t.Errorf("Expected front matter %q, got %q", tc.front, front)
			}
			if string(body) != tc.body {
				t.Errorf("Expected body %q, got %q", tc.body, body)
			}
		})
	}
}

func TestContentHash(t *testing.T) {
	const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHash(nil); got != emptySHA256 {
		t.Errorf("Expected %s, got %s", emptySHA256, got)
	}
	if ContentHashString("a") != ContentHash([]byte("a")) {
		t.Error("Expected string and byte hashes to match")
	}
}
