// Package migrations embeds the numbered SQL files that create the catalog
// tables (entity_types, attribute_definitions). The staged value-store
// migration is not file-based; it lives in internal/migrator because it is
// data-driven per entity type.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
