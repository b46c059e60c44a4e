// Package migrations embeds the SQL applied to every branch schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
