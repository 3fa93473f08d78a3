// Package migrations embeds the SQL schema migrations so the server binary
// can migrate the staging store without shipping loose files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
