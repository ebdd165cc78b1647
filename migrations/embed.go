// Package migrations embeds the SQL schema for the Postgres store.
package migrations

import "embed"

// Files holds every .sql file in this directory; they are applied in name order (001, 002, ...).
//
//go:embed *.sql
var Files embed.FS
