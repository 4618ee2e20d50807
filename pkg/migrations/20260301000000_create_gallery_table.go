package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS gallery (
				cite_key TEXT PRIMARY KEY NOT NULL,
				preview_index INTEGER NOT NULL DEFAULT 0,
				source_item_id INTEGER
			)
`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP TABLE IF EXISTS gallery`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
