package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Corp":        "acme-corp",
		"acme.com":         "acme-com",
		"  Big   Name  ":   "big-name",
		"Ünicode & Co":     "nicode-co",
		"already-slugged":  "already-slugged",
		"---":              "",
		"Tabs\tand\nlines": "tabs-and-lines",
	}
	for input, want := range cases {
		assert.Equal(t, want, Slugify(input), "input %q", input)
	}
}

func TestUniqueSlugAppendsSuffix(t *testing.T) {
	slug := UniqueSlug("Acme Corp")
	assert.True(t, strings.HasPrefix(slug, "acme-corp-"), "got %q", slug)

	// Suffix is 3 random bytes hex-encoded.
	suffix := strings.TrimPrefix(slug, "acme-corp-")
	assert.Len(t, suffix, 6)

	assert.NotEqual(t, slug, UniqueSlug("Acme Corp"))
}
