package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bridger-herman/zotero-gallery/pkg/archive"
	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/database"
	"github.com/bridger-herman/zotero-gallery/pkg/extract"
	"github.com/bridger-herman/zotero-gallery/pkg/fileutils"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/bridger-herman/zotero-gallery/pkg/migrations"
	"github.com/bridger-herman/zotero-gallery/pkg/server"
	"github.com/bridger-herman/zotero-gallery/pkg/syncer"
	"github.com/bridger-herman/zotero-gallery/pkg/version"
	"github.com/bridger-herman/zotero-gallery/pkg/zotero"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:    "zotero-gallery",
		Usage:   "image gallery for a Zotero publication collection",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:  "extract",
				Usage: "extract preview images for new publications in the gallery collection",
				Action: func(c *cli.Context) error {
					return withLock(cfg, func() error {
						return runExtract(c.Context, cfg, log)
					})
				},
			},
			{
				Name:  "pull",
				Usage: "copy the Zotero databases and fetch the remote gallery bundle",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "sync-state-only",
						Usage: "refresh the Zotero database copies without touching gallery data",
					},
				},
				Action: func(c *cli.Context) error {
					return withLock(cfg, func() error {
						mgr := syncer.NewManager(cfg, nil, archive.NewArchiver(cfg, nil))
						_, err := mgr.Pull(c.Context, syncer.PullOptions{
							IncludeGalleryData: !c.Bool("sync-state-only"),
						})
						return err
					})
				},
			},
			{
				Name:  "push",
				Usage: "pack the gallery and upload the bundle to the placeholder entry",
				Action: func(c *cli.Context) error {
					return withLock(cfg, func() error {
						db, galleryService, err := openGallery(c.Context, cfg, log)
						if err != nil {
							return err
						}
						defer db.Close()

						mgr := syncer.NewManager(cfg, db, archive.NewArchiver(cfg, galleryService))
						result, err := mgr.Push(c.Context)
						if err != nil {
							return err
						}

						log.Info("push complete", logger.Data{"archived": result.Packed.Archived})
						return nil
					})
				},
			},
			{
				Name:  "pack",
				Usage: "collapse each publication to its preview image and write the archive",
				Action: func(c *cli.Context) error {
					return withLock(cfg, func() error {
						db, galleryService, err := openGallery(c.Context, cfg, log)
						if err != nil {
							return err
						}
						defer db.Close()

						result, err := archive.NewArchiver(cfg, galleryService).Pack(c.Context)
						if err != nil {
							return err
						}

						log.Info("pack complete", logger.Data{
							"archived":  result.Archived,
							"collapsed": result.Collapsed,
							"orphaned":  len(result.Orphaned),
						})
						return nil
					})
				},
			},
			{
				Name:  "unpack",
				Usage: "restore the image tree from the local archive",
				Action: func(c *cli.Context) error {
					return withLock(cfg, func() error {
						result, err := archive.NewArchiver(cfg, nil).Unpack()
						if err != nil {
							return err
						}

						log.Info("unpack complete", logger.Data{"total": result.Total, "new": result.New})
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "remove a publication's gallery entry and images",
				ArgsUsage: "<citekey>",
				Action: func(c *cli.Context) error {
					citeKey := c.Args().First()
					if citeKey == "" {
						return errors.New("a citation key is required")
					}

					return withLock(cfg, func() error {
						return runRemove(c.Context, cfg, log, citeKey)
					})
				},
			},
			{
				Name:  "run",
				Usage: "run the gallery web server",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "log every gallery database query",
					},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("debug") {
						cfg.DatabaseDebug = true
					}
					return runServe(c.Context, cfg, log)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("command failed")
	}
}

// withLock serializes mutating commands across processes. A second instance
// fails immediately instead of queueing behind the first.
func withLock(cfg *config.Config, fn func() error) error {
	if err := os.MkdirAll(cfg.GalleryDataDir, 0755); err != nil {
		return errors.WithStack(err)
	}

	lock := flock.New(cfg.LockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return errors.WithStack(err)
	}
	if !locked {
		return errors.New("another zotero-gallery command is already running")
	}
	defer lock.Unlock() //nolint:errcheck

	return fn()
}

// openGallery opens the gallery database and brings its schema up to date.
func openGallery(ctx context.Context, cfg *config.Config, log logger.Logger) (*bun.DB, *gallery.Service, error) {
	if err := os.MkdirAll(cfg.GalleryDataDir, 0755); err != nil {
		return nil, nil, errors.WithStack(err)
	}

	db, err := database.NewGallery(cfg)
	if err != nil {
		return nil, nil, err
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if group.ID != 0 {
		log.Info("migrated gallery database", logger.Data{"group_id": group.ID})
	}

	return db, gallery.NewService(db), nil
}

// ensureLocalDatabases pulls the Zotero database copies if they have never
// been pulled on this machine.
func ensureLocalDatabases(ctx context.Context, cfg *config.Config) error {
	if fileutils.Exists(cfg.LocalZoteroDatabasePath()) && fileutils.Exists(cfg.LocalBetterBibTeXDatabasePath()) {
		return nil
	}

	mgr := syncer.NewManager(cfg, nil, archive.NewArchiver(cfg, nil))
	_, err := mgr.Pull(ctx, syncer.PullOptions{})
	return err
}

func runExtract(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if err := ensureLocalDatabases(ctx, cfg); err != nil {
		return err
	}

	db, galleryService, err := openGallery(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	zoteroDB, err := database.OpenReadOnly(cfg, cfg.LocalZoteroDatabasePath())
	if err != nil {
		return err
	}
	defer zoteroDB.Close()

	bbtDB, err := database.OpenReadOnly(cfg, cfg.LocalBetterBibTeXDatabasePath())
	if err != nil {
		return err
	}
	defer bbtDB.Close()

	citeKeys, err := zotero.LoadCiteKeys(ctx, bbtDB)
	if err != nil {
		return err
	}
	log.Info("loaded citation keys", logger.Data{"count": citeKeys.Len()})

	orchestrator := extract.NewOrchestrator(
		cfg,
		zotero.NewService(zoteroDB, cfg),
		citeKeys,
		galleryService,
		extract.NewDefaultRegistry(),
	)

	result, err := orchestrator.Extract(ctx)
	if err != nil {
		return err
	}

	log.Info("extract complete", logger.Data{
		"publications": result.Publications,
		"new":          result.NewPublications,
		"skipped":      len(result.Skipped),
	})
	return nil
}

func runRemove(ctx context.Context, cfg *config.Config, log logger.Logger, citeKey string) error {
	db, galleryService, err := openGallery(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := galleryService.RemoveEntry(ctx, citeKey); err != nil {
		return err
	}

	imageDir := filepath.Join(cfg.ImagesDir(), filepath.Base(citeKey))
	if err := os.RemoveAll(imageDir); err != nil {
		return errors.WithStack(err)
	}

	log.Info("removed publication", logger.Data{"cite_key": citeKey})
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	log.Info("starting zotero-gallery", logger.Data{"version": version.Version})

	db, _, err := openGallery(ctx, cfg, log)
	if err != nil {
		return err
	}

	// The Zotero copy is optional for serving; without it the gallery just
	// renders without bibliographic metadata.
	var zoteroDB *bun.DB
	if fileutils.Exists(cfg.LocalZoteroDatabasePath()) {
		zoteroDB, err = database.OpenReadOnly(cfg, cfg.LocalZoteroDatabasePath())
		if err != nil {
			return err
		}
	} else {
		log.Warn("no local zotero.sqlite copy, serving without metadata", logger.Data{"path": cfg.LocalZoteroDatabasePath()})
	}

	srv, err := server.New(cfg, db, zoteroDB)
	if err != nil {
		return err
	}

	graceful := signals.Setup()

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr})
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	if err := srv.Shutdown(ctx); err != nil {
		log.Err(err).Error("server shutdown error")
	}

	if zoteroDB != nil {
		if err := zoteroDB.Close(); err != nil {
			log.Err(err).Error("zotero database close error")
		}
	}
	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")

	return nil
}
