// Package schema embeds the Postgres migrations for boards, columns, tasks
// and team membership.
package schema

import (
	"embed"
	"io/fs"
)

//go:embed pgmigrations/*.sql
var embedded embed.FS

// Postgres returns the migration files with pgmigrations/ as the root, so
// names read "001_boards.sql". Files apply in lexical order.
func Postgres() fs.FS {
	sub, err := fs.Sub(embedded, "pgmigrations")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return sub
}
