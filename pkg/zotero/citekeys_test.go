package zotero

import (
	"context"
	"database/sql"
	"testing"

	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupBetterBibTeXDB(t *testing.T, blob string) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})

	_, err = db.Exec(`CREATE TABLE "better-bibtex" (name TEXT PRIMARY KEY, data TEXT NOT NULL)`)
	require.NoError(t, err)

	if blob != "" {
		_, err = db.Exec(`INSERT INTO "better-bibtex" (name, data) VALUES ('better-bibtex.citekey', ?)`, blob)
		require.NoError(t, err)
	}

	return db
}

func TestLoadCiteKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("loads the citation key table", func(t *testing.T) {
		db := setupBetterBibTeXDB(t, `{"data":[
			{"itemKey":"KEYA","citekey":"herman2020"},
			{"itemKey":"KEYB","citekey":"smith2019"}
		]}`)

		citeKeys, err := LoadCiteKeys(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, 2, citeKeys.Len())

		citeKey, err := citeKeys.Resolve("KEYA")
		require.NoError(t, err)
		assert.Equal(t, "herman2020", citeKey)
	})

	t.Run("missing row", func(t *testing.T) {
		db := setupBetterBibTeXDB(t, "")

		_, err := LoadCiteKeys(ctx, db)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errcodes.NotFound("Better BibTeX citation key table")))
	})

	t.Run("malformed blob", func(t *testing.T) {
		db := setupBetterBibTeXDB(t, "not json")

		_, err := LoadCiteKeys(ctx, db)
		require.Error(t, err)
	})
}

func TestCiteKeys_Resolve(t *testing.T) {
	citeKeys := NewCiteKeys(map[string]string{"KEYA": "herman2020"})

	_, err := citeKeys.Resolve("UNKNOWN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcodes.NotFound("Citation key for item UNKNOWN")))
}
