// Package migrations embeds the SQL schema applied at startup and used by
// tests and tooling.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
