package syncer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bridger-herman/zotero-gallery/pkg/archive"
	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/database"
	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/bridger-herman/zotero-gallery/pkg/migrations"
	"github.com/bridger-herman/zotero-gallery/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// newTestConfig points a config at a fake Zotero library and a fresh gallery
// working area, both under temp dirs.
func newTestConfig(t *testing.T, zoteroDataDir string) *config.Config {
	t.Helper()
	return &config.Config{
		CollectionName:      "_Gallery",
		DatabaseBusyTimeout: time.Second,
		GalleryDataDir:      t.TempDir(),
		SyncTagName:         "zotero-gallery",
		ZoteroDataDir:       zoteroDataDir,
	}
}

// setupZoteroLibrary builds a minimal live Zotero library: a zotero.sqlite
// with a tagged placeholder entry whose two attachments are the bundle
// slots, a better-bibtex.sqlite, and the storage directories.
func setupZoteroLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	sqldb, err := sql.Open(sqliteshim.ShimName, filepath.Join(dir, "zotero.sqlite"))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	stmts := []string{
		`CREATE TABLE items (itemID INTEGER PRIMARY KEY, key TEXT NOT NULL)`,
		`CREATE TABLE collections (collectionID INTEGER PRIMARY KEY, collectionName TEXT NOT NULL)`,
		`CREATE TABLE collectionItems (collectionID INT, itemID INT)`,
		`CREATE TABLE itemAttachments (itemID INTEGER PRIMARY KEY, parentItemID INT, contentType TEXT, path TEXT)`,
		`CREATE TABLE tags (tagID INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE itemTags (itemID INT, tagID INT)`,
		`INSERT INTO items (itemID, key) VALUES (50, 'PLACEHOLD'), (51, 'SLOTKEY1'), (52, 'SLOTKEY2')`,
		`INSERT INTO tags (tagID, name) VALUES (1, 'zotero-gallery')`,
		`INSERT INTO itemTags (itemID, tagID) VALUES (50, 1)`,
		`INSERT INTO itemAttachments (itemID, parentItemID, contentType, path) VALUES
			(51, 50, 'application/x-sqlite3', 'storage:gallery.sqlite'),
			(52, 50, 'application/zip', 'storage:gallery-images.zip')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	// Storage slots for the bundle attachments.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "storage", "SLOTKEY1"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "storage", "SLOTKEY2"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "storage", "SLOTKEY1", "gallery.sqlite"), []byte{}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "storage", "SLOTKEY2", "gallery-images.zip"), []byte{}, 0644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "better-bibtex.sqlite"), []byte("bbt"), 0644))

	return dir
}

func openGallery(t *testing.T, cfg *config.Config) (*bun.DB, *gallery.Service) {
	t.Helper()
	db, err := database.NewGallery(cfg)
	require.NoError(t, err)
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db, gallery.NewService(db)
}

func TestManager_PullSyncStateOnly(t *testing.T) {
	zoteroDir := setupZoteroLibrary(t)
	cfg := newTestConfig(t, zoteroDir)
	mgr := NewManager(cfg, nil, archive.NewArchiver(cfg, nil))

	result, err := mgr.Pull(context.Background(), PullOptions{})
	require.NoError(t, err)
	assert.Nil(t, result.Unpacked)

	assert.FileExists(t, cfg.LocalZoteroDatabasePath())
	assert.FileExists(t, cfg.LocalBetterBibTeXDatabasePath())
	// Gallery data untouched in sync-state-only mode.
	assert.NoFileExists(t, cfg.GalleryDatabasePath())
	assert.NoFileExists(t, cfg.ArchivePath())
}

func TestManager_PullBacksUpLocalCopies(t *testing.T) {
	zoteroDir := setupZoteroLibrary(t)
	cfg := newTestConfig(t, zoteroDir)
	mgr := NewManager(cfg, nil, archive.NewArchiver(cfg, nil))

	require.NoError(t, os.MkdirAll(cfg.GalleryDataDir, 0755))
	require.NoError(t, os.WriteFile(cfg.LocalZoteroDatabasePath(), []byte("stale"), 0644))
	require.NoError(t, os.WriteFile(cfg.GalleryDatabasePath(), []byte("gallery"), 0644))

	_, err := mgr.Pull(context.Background(), PullOptions{})
	require.NoError(t, err)

	backup, err := os.ReadFile(cfg.LocalZoteroDatabasePath() + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "stale", string(backup))

	// Gallery files are in the backup set even when the pull doesn't fetch
	// the bundle.
	backup, err = os.ReadFile(cfg.GalleryDatabasePath() + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "gallery", string(backup))
}

func TestManager_LocateSyncBundle(t *testing.T) {
	ctx := context.Background()

	t.Run("finds both slots", func(t *testing.T) {
		zoteroDir := setupZoteroLibrary(t)
		cfg := newTestConfig(t, zoteroDir)
		mgr := NewManager(cfg, nil, archive.NewArchiver(cfg, nil))

		_, err := mgr.Pull(ctx, PullOptions{})
		require.NoError(t, err)

		bundle, err := mgr.LocateSyncBundle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 50, bundle.ItemID)
		assert.Equal(t, filepath.Join(zoteroDir, "storage", "SLOTKEY1", "gallery.sqlite"), bundle.DatabasePath)
		assert.Equal(t, filepath.Join(zoteroDir, "storage", "SLOTKEY2", "gallery-images.zip"), bundle.ArchivePath)
	})

	t.Run("missing marker tag", func(t *testing.T) {
		zoteroDir := setupZoteroLibrary(t)
		cfg := newTestConfig(t, zoteroDir)
		cfg.SyncTagName = "some-other-tag"
		mgr := NewManager(cfg, nil, archive.NewArchiver(cfg, nil))

		_, err := mgr.Pull(ctx, PullOptions{})
		require.NoError(t, err)

		_, err = mgr.LocateSyncBundle(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errcodes.SyncTargetMissing("some-other-tag")))
	})
}

// Push followed by a fresh pull has to reproduce the gallery database and
// image tree exactly.
func TestManager_PushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	zoteroDir := setupZoteroLibrary(t)

	// Machine one: build some gallery state and push it.
	cfgA := newTestConfig(t, zoteroDir)
	require.NoError(t, os.MkdirAll(cfgA.ImagesDir(), 0755))

	dbA, svcA := openGallery(t, cfgA)

	imageDir := filepath.Join(cfgA.ImagesDir(), "herman2020")
	require.NoError(t, os.MkdirAll(imageDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "a.png"), []byte("aaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "b.png"), []byte("bbb"), 0644))
	require.NoError(t, svcA.UpsertEntry(ctx, "herman2020", 7))
	require.NoError(t, svcA.SetPreviewIndex(ctx, "herman2020", 1))

	mgrA := NewManager(cfgA, dbA, archive.NewArchiver(cfgA, svcA))
	_, err := mgrA.Pull(ctx, PullOptions{})
	require.NoError(t, err)

	pushResult, err := mgrA.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushResult.Packed.Archived)

	// Machine two: fresh working area, pull everything.
	cfgB := newTestConfig(t, zoteroDir)
	mgrB := NewManager(cfgB, nil, archive.NewArchiver(cfgB, nil))

	pullResult, err := mgrB.Pull(ctx, PullOptions{IncludeGalleryData: true})
	require.NoError(t, err)
	require.NotNil(t, pullResult.Unpacked)
	assert.Equal(t, 1, pullResult.Unpacked.Total)
	assert.Equal(t, 1, pullResult.Unpacked.New)

	data, err := os.ReadFile(filepath.Join(cfgB.ImagesDir(), "herman2020", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(data))

	_, svcB := openGallery(t, cfgB)
	entry, err := svcB.RetrieveEntry(ctx, "herman2020")
	require.NoError(t, err)
	assert.Equal(t, models.PreviewIndexPacked, entry.PreviewIndex)
	assert.Equal(t, 7, entry.SourceItemID)

	// Live Zotero databases were backed up under push's namespace.
	assert.FileExists(t, filepath.Join(zoteroDir, "zotero.sqlite.gallery-push.bak"))
}
