// Package dbmigrations exposes embedded SQL migrations for the tracker binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into the tracker binaries.
//
//go:embed *.sql
var Files embed.FS
