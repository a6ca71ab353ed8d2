// Package migrations embeds the database schema migrations.
package migrations

import "embed"

// FS holds the up and down SQL files in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
