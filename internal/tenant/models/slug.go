package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Slugify derives a URL-safe base slug from an organization name: lower-cased,
// with runs of non-alphanumeric characters collapsed to a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// UniqueSlug appends a short random token to the base slug so two tenants
// named alike still get distinct slugs.
func UniqueSlug(name string) string {
	base := Slugify(name)
	if base == "" {
		base = "org"
	}
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return base + "-" + hex.EncodeToString(buf)
}
