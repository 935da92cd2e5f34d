package migrations

import "embed"

// FS holds the payout journal schema applied by db.Migrate.
//
//go:embed *.sql
var FS embed.FS
