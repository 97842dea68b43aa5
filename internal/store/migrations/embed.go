package migrations

import "embed"

// FS contains the schema migrations for each supported dialect, under postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
