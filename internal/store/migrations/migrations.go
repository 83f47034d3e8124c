// Package migrations embeds the SQL schema migrations for tgd.db.
//
// 0002_fts creates an FTS5 virtual table; mattn/go-sqlite3 compiles FTS5
// in only with the sqlite_fts5 build tag. Binaries built without it fail
// here with "no such module: fts5".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
