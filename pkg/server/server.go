package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bridger-herman/zotero-gallery/pkg/binder"
	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/database"
	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/bridger-herman/zotero-gallery/pkg/publications"
	"github.com/bridger-herman/zotero-gallery/pkg/zotero"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

// New wires the gallery's web layer. zoteroDB may be nil when no local copy
// of zotero.sqlite has been pulled yet; the gallery still serves, without
// bibliographic metadata.
func New(cfg *config.Config, galleryDB *bun.DB, zoteroDB *bun.DB) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	if cfg.DatabaseDebug {
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				req := c.Request()
				c.SetRequest(req.WithContext(database.WithLogging(req.Context())))
				return next(c)
			}
		})
	}

	health.RegisterRoutes(e)

	var zoteroService *zotero.Service
	if zoteroDB != nil {
		zoteroService = zotero.NewService(zoteroDB, cfg)
	}

	galleryService := gallery.NewService(galleryDB)
	publicationService := publications.NewService(cfg, galleryService, zoteroService)
	publications.RegisterRoutes(e, publicationService)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
