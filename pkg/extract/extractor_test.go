package extract

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/bridger-herman/zotero-gallery/pkg/migrations"
	"github.com/bridger-herman/zotero-gallery/pkg/zotero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// fakeDecoder records its calls and drops fixed files into the target dir.
type fakeDecoder struct {
	contentType string
	files       []string
	calls       int
}

func (d *fakeDecoder) ContentType() string { return d.contentType }

func (d *fakeDecoder) Decode(targetDir, sourcePath string) error {
	d.calls++
	for _, name := range d.files {
		if err := os.WriteFile(filepath.Join(targetDir, name), []byte(sourcePath), 0644); err != nil {
			return err
		}
	}
	return nil
}

// setupZoteroDB builds an in-memory zotero.sqlite slice: a gallery collection
// with three members. The first has a decodable attachment, the second has an
// attachment nothing can decode, and the third has no citation key.
func setupZoteroDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})

	stmts := []string{
		`CREATE TABLE items (itemID INTEGER PRIMARY KEY, key TEXT NOT NULL)`,
		`CREATE TABLE collections (collectionID INTEGER PRIMARY KEY, collectionName TEXT NOT NULL)`,
		`CREATE TABLE collectionItems (collectionID INT, itemID INT)`,
		`CREATE TABLE itemAttachments (itemID INTEGER PRIMARY KEY, parentItemID INT, contentType TEXT, path TEXT)`,
		`INSERT INTO collections (collectionID, collectionName) VALUES (1, '_Gallery')`,
		`INSERT INTO items (itemID, key) VALUES
			(1, 'KEYA'), (2, 'KEYB'), (3, 'KEYC'),
			(11, 'ATTA'), (12, 'ATTB')`,
		`INSERT INTO collectionItems (collectionID, itemID) VALUES (1, 1), (1, 2), (1, 3)`,
		`INSERT INTO itemAttachments (itemID, parentItemID, contentType, path) VALUES
			(11, 1, 'application/pdf', 'storage:alpha.pdf'),
			(12, 2, 'application/octet-stream', 'storage:beta.bin')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return db
}

func setupGalleryDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func setupOrchestrator(t *testing.T) (*config.Config, *Orchestrator, *gallery.Service, *fakeDecoder) {
	t.Helper()

	cfg := &config.Config{
		CollectionName: "_Gallery",
		GalleryDataDir: t.TempDir(),
		ZoteroDataDir:  t.TempDir(),
	}

	zoteroDB := setupZoteroDB(t)
	galleryDB := setupGalleryDB(t)

	citeKeys := zotero.NewCiteKeys(map[string]string{
		"KEYA": "alpha2020",
		"KEYB": "beta2021",
	})

	decoder := &fakeDecoder{contentType: "application/pdf", files: []string{"img00001.png", "img00002.png"}}
	galleryService := gallery.NewService(galleryDB)
	orchestrator := NewOrchestrator(cfg, zotero.NewService(zoteroDB, cfg), citeKeys, galleryService, NewRegistry(decoder))

	return cfg, orchestrator, galleryService, decoder
}

func TestOrchestrator_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("materializes new publications", func(t *testing.T) {
		cfg, orchestrator, galleryService, decoder := setupOrchestrator(t)

		result, err := orchestrator.Extract(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Publications)
		assert.Equal(t, 2, result.NewPublications)
		assert.Equal(t, []string{"KEYC"}, result.Skipped)
		assert.Equal(t, 1, decoder.calls)

		// Decodable attachment produced images.
		assert.FileExists(t, filepath.Join(cfg.ImagesDir(), "alpha2020", "img00001.png"))
		assert.FileExists(t, filepath.Join(cfg.ImagesDir(), "alpha2020", "img00002.png"))

		// Undecodable attachment still gets a directory, just an empty one.
		assert.DirExists(t, filepath.Join(cfg.ImagesDir(), "beta2021"))

		entry, err := galleryService.RetrieveEntry(ctx, "alpha2020")
		require.NoError(t, err)
		assert.Equal(t, 0, entry.PreviewIndex)
		assert.Equal(t, 1, entry.SourceItemID)
	})

	t.Run("second run leaves populated publications alone", func(t *testing.T) {
		cfg, orchestrator, galleryService, decoder := setupOrchestrator(t)

		_, err := orchestrator.Extract(ctx)
		require.NoError(t, err)

		// Curation since the first run must survive the second.
		require.NoError(t, galleryService.SetPreviewIndex(ctx, "alpha2020", 1))

		result, err := orchestrator.Extract(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Publications)
		assert.Equal(t, 1, decoder.calls)

		entry, err := galleryService.RetrieveEntry(ctx, "alpha2020")
		require.NoError(t, err)
		assert.Equal(t, 1, entry.PreviewIndex)

		assert.FileExists(t, filepath.Join(cfg.ImagesDir(), "alpha2020", "img00001.png"))
	})

	t.Run("empty directory is treated as new", func(t *testing.T) {
		cfg, orchestrator, _, decoder := setupOrchestrator(t)

		// Simulate a crash after mkdir but before any image was written.
		require.NoError(t, os.MkdirAll(filepath.Join(cfg.ImagesDir(), "alpha2020"), 0755))

		_, err := orchestrator.Extract(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, decoder.calls)
		assert.FileExists(t, filepath.Join(cfg.ImagesDir(), "alpha2020", "img00001.png"))
	})

	t.Run("missing collection aborts", func(t *testing.T) {
		cfg, orchestrator, _, _ := setupOrchestrator(t)
		cfg.CollectionName = "_Nonexistent"

		_, err := orchestrator.Extract(ctx)
		require.Error(t, err)
	})
}
