package publications

import (
	"net/http"

	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/fileutils"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	publicationService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	publications, err := h.publicationService.ListPublications(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]any{
		"publications": publications,
		"total":        len(publications),
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) previews(c echo.Context) error {
	ctx := c.Request().Context()

	indices, err := h.publicationService.GetPreviewIndices(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, indices))
}

func (h *handler) adjustPreview(c echo.Context) error {
	ctx := c.Request().Context()
	citeKey := c.Param("citeKey")

	params := AdjustPreviewPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	entry, err := h.publicationService.AdjustPreview(ctx, citeKey, params.Direction)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, entry))
}

func (h *handler) image(c echo.Context) error {
	path := h.publicationService.ImagePath(c.Param("citeKey"), c.Param("filename"))
	if !fileutils.Exists(path) {
		return errcodes.NotFound("Image")
	}

	return errors.WithStack(c.File(path))
}
