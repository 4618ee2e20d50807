package publications

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the gallery's web endpoints.
func RegisterRoutes(e *echo.Echo, publicationService *Service) {
	h := &handler{
		publicationService: publicationService,
	}

	e.GET("/publications", h.list)
	e.GET("/publications/previews", h.previews)
	e.POST("/publications/:citeKey/preview", h.adjustPreview)
	e.GET("/images/:citeKey/:filename", h.image)
}
