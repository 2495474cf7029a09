// Package migrations embeds the schema migration files so both binaries can
// apply them without a files-on-disk dependency.
package migrations

import "embed"

//go:embed *.up.sql
var Files embed.FS
