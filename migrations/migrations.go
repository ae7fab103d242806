// Package migrations embeds the SQL schema for the relational storage drivers.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per driver: sqlite and postgres.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
