// Package theme resolves chroma styles for draft previews and generates their
// stylesheets.
package theme

import (
	"html/template"
	"net/http"
	"slices"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/debemdeboas/coursesync/internal/cache"
	"github.com/debemdeboas/coursesync/internal/config"
)

// QueryTheme selects the syntax style of a preview request.
const QueryTheme = "theme"

// SyntaxThemeFromRequest returns the requested style when chroma knows it,
// otherwise def.
func SyntaxThemeFromRequest(r *http.Request, def string) string {
	if name := r.URL.Query().Get(QueryTheme); IsSyntaxTheme(name) {
		return name
	}
	if def == "" {
		return config.DefaultDarkSyntaxTheme
	}
	return def
}

func IsSyntaxTheme(name string) bool {
	if name == "" {
		return false
	}
	_, ok := styles.Registry[name]
	return ok
}

func GetSyntaxThemes() []string {
	styleNames := styles.Names()
	slices.Sort(styleNames)
	return styleNames
}

func GetFormatter() *html.Formatter {
	formatter := html.New(
		html.WithClasses(true),
		html.TabWidth(4),
		html.WithLineNumbers(true),
		html.WrapLongLines(true),
	)
	return formatter
}

func GenerateSyntaxCSS(theme string) template.CSS {
	if css, ok := cache.GetSyntaxCSS(theme); ok {
		return css
	}

	var buf strings.Builder
	formatter := GetFormatter()
	style := styles.Get(theme)

	bg := style.Get(chroma.Background)
	if !bg.Colour.IsSet() {
		// Pick a readable text colour when the style leaves it unset.
		luminance := (0.299*float64(bg.Background.Red()) +
			0.587*float64(bg.Background.Green()) +
			0.114*float64(bg.Background.Blue())) / 255
		if luminance > 0.5 {
			buf.WriteString(".chroma { color: #181818; }\n")
		}
	}

	formatter.WriteCSS(&buf, style)
	css := template.CSS(buf.String())
	cache.SetSyntaxCSS(theme, css)
	return css
}
