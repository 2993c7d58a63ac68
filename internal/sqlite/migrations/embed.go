// Package migrations holds the versioned SQL schema for the corpus database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
