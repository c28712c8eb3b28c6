// Package migrations embeds the goose schema migrations for the queue service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
