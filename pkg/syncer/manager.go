package syncer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bridger-herman/zotero-gallery/pkg/archive"
	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/database"
	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/fileutils"
	"github.com/bridger-herman/zotero-gallery/pkg/zotero"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Backup suffixes. Pull and push back up different things (local copies vs.
// the live Zotero databases), so they get separate namespaces and never
// clobber each other.
const (
	pullBackupSuffix = ".bak"
	pushBackupSuffix = ".gallery-push.bak"
)

// Manager moves state between the live Zotero library, the local working
// copy, and the sync bundle attached to the tagged placeholder entry.
// Anything it is about to overwrite gets backed up first.
type Manager struct {
	cfg       *config.Config
	galleryDB *bun.DB
	archiver  *archive.Archiver
	log       logger.Logger
}

func NewManager(cfg *config.Config, galleryDB *bun.DB, archiver *archive.Archiver) *Manager {
	return &Manager{
		cfg:       cfg,
		galleryDB: galleryDB,
		archiver:  archiver,
		log:       logger.New(),
	}
}

type PullOptions struct {
	// IncludeGalleryData also fetches the sync bundle (gallery database and
	// image archive) and unpacks it. Without it, only the Zotero databases
	// are refreshed and existing gallery data is left alone.
	IncludeGalleryData bool
}

type PullResult struct {
	Unpacked *archive.UnpackResult
}

// Pull copies the live Zotero databases into the local working area, and
// optionally fetches and unpacks the remote sync bundle.
func (m *Manager) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	if err := os.MkdirAll(m.cfg.GalleryDataDir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}

	// Every local copy is backed up on every pull, even the gallery files a
	// sync-state-only pull won't touch. BackupFile is a no-op for files that
	// don't exist yet.
	backups := []string{
		m.cfg.LocalZoteroDatabasePath(),
		m.cfg.LocalBetterBibTeXDatabasePath(),
		m.cfg.GalleryDatabasePath(),
		m.cfg.ArchivePath(),
	}
	for _, path := range backups {
		if err := fileutils.BackupFile(path, pullBackupSuffix); err != nil {
			return nil, err
		}
	}

	if err := fileutils.CopyFile(m.cfg.ZoteroDatabasePath(), m.cfg.LocalZoteroDatabasePath()); err != nil {
		return nil, err
	}
	if err := fileutils.CopyFile(m.cfg.BetterBibTeXDatabasePath(), m.cfg.LocalBetterBibTeXDatabasePath()); err != nil {
		return nil, err
	}
	m.log.Info("pulled zotero databases", logger.Data{"dir": m.cfg.GalleryDataDir})

	if !opts.IncludeGalleryData {
		return &PullResult{}, nil
	}

	bundle, err := m.LocateSyncBundle(ctx)
	if err != nil {
		return nil, err
	}

	if err := fileutils.CopyFile(bundle.DatabasePath, m.cfg.GalleryDatabasePath()); err != nil {
		return nil, err
	}
	if err := fileutils.CopyFile(bundle.ArchivePath, m.cfg.ArchivePath()); err != nil {
		return nil, err
	}

	unpacked, err := m.archiver.Unpack()
	if err != nil {
		return nil, err
	}
	m.log.Info("unpacked gallery bundle", logger.Data{"total": unpacked.Total, "new": unpacked.New})

	return &PullResult{Unpacked: unpacked}, nil
}

type PushResult struct {
	Packed *archive.PackResult
}

// Push packs the gallery and overwrites the placeholder entry's attachment
// slots with the fresh bundle. The live Zotero databases are backed up
// first, under a different suffix than pull's backups.
func (m *Manager) Push(ctx context.Context) (*PushResult, error) {
	if err := fileutils.BackupFile(m.cfg.ZoteroDatabasePath(), pushBackupSuffix); err != nil {
		return nil, err
	}
	if err := fileutils.BackupFile(m.cfg.BetterBibTeXDatabasePath(), pushBackupSuffix); err != nil {
		return nil, err
	}

	packed, err := m.archiver.Pack(ctx)
	if err != nil {
		return nil, err
	}

	// Flush the WAL so the database file on disk is complete before copying.
	if _, err := m.galleryDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, errors.Wrap(err, "failed to checkpoint gallery database")
	}

	bundle, err := m.LocateSyncBundle(ctx)
	if err != nil {
		return nil, err
	}

	if err := fileutils.CopyFile(m.cfg.GalleryDatabasePath(), bundle.DatabasePath); err != nil {
		return nil, err
	}
	if err := fileutils.CopyFile(m.cfg.ArchivePath(), bundle.ArchivePath); err != nil {
		return nil, err
	}
	m.log.Info("pushed gallery bundle", logger.Data{"archived": packed.Archived})

	return &PushResult{Packed: packed}, nil
}

// Bundle is the located pair of sync attachment files in Zotero storage.
type Bundle struct {
	ItemID       int
	DatabasePath string
	ArchivePath  string
}

// LocateSyncBundle finds the placeholder entry by the reserved marker tag
// and matches its attachments against the two expected bundle filenames.
// Both must match or the bundle is treated as unavailable.
func (m *Manager) LocateSyncBundle(ctx context.Context) (*Bundle, error) {
	db, err := database.OpenReadOnly(m.cfg, m.cfg.LocalZoteroDatabasePath())
	if err != nil {
		return nil, err
	}
	defer db.Close()

	zoteroService := zotero.NewService(db, m.cfg)

	item, err := zoteroService.FindTaggedItem(ctx, m.cfg.SyncTagName)
	if err != nil {
		return nil, err
	}

	attachments, err := zoteroService.ListAttachments(ctx, item.ItemID)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{ItemID: item.ItemID}
	for _, attachment := range attachments {
		path, err := zoteroService.AttachmentAbsolutePath(ctx, attachment)
		if err != nil {
			return nil, err
		}

		switch filepath.Base(path) {
		case config.GalleryDatabaseFilename:
			bundle.DatabasePath = path
		case config.ArchiveFilename:
			bundle.ArchivePath = path
		default:
			m.log.Warn("unexpected attachment on sync placeholder entry", logger.Data{"path": path})
		}
	}

	if bundle.DatabasePath == "" || bundle.ArchivePath == "" {
		return nil, errcodes.NotFound("Complete sync bundle")
	}

	return bundle, nil
}
