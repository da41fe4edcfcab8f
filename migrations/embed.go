// Package migrations содержит встроенные SQL-миграции схемы движка.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
