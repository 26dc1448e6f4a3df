package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_BasicOperations(t *testing.T) {
	c := NewCache[string, int]()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	c.Set("b", 2)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetToAndKeys(t *testing.T) {
	c := NewCache[string, int]()
	c.Set("stale", 0)
	c.SetTo(map[string]int{"b": 2, "c": 3, "a": 1})

	_, ok := c.Get("stale")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys(func(a, b string) bool { return a < b }))
}

func TestCache_Concurrency(t *testing.T) {
	c := NewCache[int, int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(g*1000+i, i)
				c.Get(i)
				if i%50 == 0 {
					c.Keys(func(a, b int) bool { return a < b })
				}
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 8*200, c.Len())
}

func TestRenderedMarkdownCache(t *testing.T) {
	ClearRenderedMarkdownCache()

	SetRenderedMarkdown("hash", "github", []byte("<p>light</p>"))
	SetRenderedMarkdown("hash", "monokai", []byte("<p>dark</p>"))

	light, ok := GetRenderedMarkdown("hash", "github")
	assert.True(t, ok)
	assert.Equal(t, "<p>light</p>", string(light.HTML))

	dark, ok := GetRenderedMarkdown("hash", "monokai")
	assert.True(t, ok)
	assert.Equal(t, "<p>dark</p>", string(dark.HTML))

	ClearRenderedMarkdownCache()
	_, ok = GetRenderedMarkdown("hash", "github")
	assert.False(t, ok)
}

func TestSyntaxCSSCache(t *testing.T) {
	theme := fmt.Sprintf("theme-%p", t)
	_, ok := GetSyntaxCSS(theme)
	assert.False(t, ok)

	SetSyntaxCSS(theme, ".chroma{}")
	css, ok := GetSyntaxCSS(theme)
	assert.True(t, ok)
	assert.EqualValues(t, ".chroma{}", css)
}

func BenchmarkCache_Get(b *testing.B) {
	c := NewCache[string, string]()
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key-%d", i), "value")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprintf("key-%d", i%1000))
	}
}
