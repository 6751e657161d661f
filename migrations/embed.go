// Package migrations embeds the SQL migrations so binaries can migrate without
// a checkout of the repository.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory
//
//go:embed *.sql
var FS embed.FS
