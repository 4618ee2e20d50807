package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Filenames of the two sync bundle attachments on the tagged placeholder
// entry. The sync manager matches attachments by these names, so renaming
// them invalidates any bundle already stored in Zotero.
const (
	GalleryDatabaseFilename = "gallery.sqlite"
	ArchiveFilename         = "gallery-images.zip"
)

type Config struct {
	CollectionName      string        `json:"collection_name"`
	DatabaseBusyTimeout time.Duration `json:"-"`
	DatabaseDebug       bool          `json:"database_debug"`
	GalleryDataDir      string        `json:"gallery_data_dir"`
	Hostname            string        `json:"-"`
	ServerHost          string        `json:"server_host"`
	ServerPort          int           `json:"server_port"`
	SyncTagName         string        `json:"sync_tag_name"`
	ZoteroDataDir       string        `json:"zotero_data_dir"`
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		CollectionName:      "_Gallery",
		DatabaseBusyTimeout: 5 * time.Second,
		GalleryDataDir:      filepath.Join(home, ".zotero-gallery"),
		Hostname:            hostname,
		ServerHost:          "127.0.0.1",
		ServerPort:          5000,
		SyncTagName:         "zotero-gallery",
		ZoteroDataDir:       filepath.Join(home, "Zotero"),
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
	}

	if err := applyUserConfig(cfg, userConfigFilePath(cfg)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Live Zotero locations. These are only ever read (pull) or written through
// the sync manager's attachment slots (push), never opened for writing.

func (cfg *Config) ZoteroDatabasePath() string {
	return filepath.Join(cfg.ZoteroDataDir, "zotero.sqlite")
}

func (cfg *Config) BetterBibTeXDatabasePath() string {
	return filepath.Join(cfg.ZoteroDataDir, "better-bibtex.sqlite")
}

func (cfg *Config) StorageDir() string {
	return filepath.Join(cfg.ZoteroDataDir, "storage")
}

// Local working copies under the gallery data dir.

func (cfg *Config) LocalZoteroDatabasePath() string {
	return filepath.Join(cfg.GalleryDataDir, "zotero.sqlite")
}

func (cfg *Config) LocalBetterBibTeXDatabasePath() string {
	return filepath.Join(cfg.GalleryDataDir, "better-bibtex.sqlite")
}

func (cfg *Config) GalleryDatabasePath() string {
	return filepath.Join(cfg.GalleryDataDir, GalleryDatabaseFilename)
}

func (cfg *Config) ArchivePath() string {
	return filepath.Join(cfg.GalleryDataDir, ArchiveFilename)
}

func (cfg *Config) ImagesDir() string {
	return filepath.Join(cfg.GalleryDataDir, "images")
}

func (cfg *Config) LockFilePath() string {
	return filepath.Join(cfg.GalleryDataDir, ".gallery.lock")
}
