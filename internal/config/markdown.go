package config

import "regexp"

var (
	// RegexCallout matches a `// <<1>>` callout in HTML-escaped code.
	RegexCallout = regexp.MustCompile(`//\s*&lt;&lt;(\d+)&gt;&gt;`)
)
