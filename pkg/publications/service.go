package publications

import (
	"context"
	"path/filepath"

	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/fileutils"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/bridger-herman/zotero-gallery/pkg/models"
	"github.com/bridger-herman/zotero-gallery/pkg/zotero"
	"github.com/robinjoseph08/golib/logger"
)

// Publication is the presentation view of a gallery entry: its curation
// state joined with the images on disk and the bibliographic metadata from
// the Zotero database.
type Publication struct {
	CiteKey      string            `json:"cite_key"`
	PreviewIndex int               `json:"preview_index"`
	Packed       bool              `json:"packed"`
	Images       []string          `json:"images"`
	Tags         []string          `json:"tags"`
	Fields       map[string]string `json:"fields"`
	FileLink     string            `json:"file_link,omitempty"`
}

// Service assembles publications for the web layer. The Zotero service is
// optional; without a pulled zotero.sqlite the gallery still renders, just
// without tags and bibliographic fields.
type Service struct {
	cfg            *config.Config
	galleryService *gallery.Service
	zoteroService  *zotero.Service
	log            logger.Logger
}

func NewService(cfg *config.Config, galleryService *gallery.Service, zoteroService *zotero.Service) *Service {
	return &Service{
		cfg:            cfg,
		galleryService: galleryService,
		zoteroService:  zoteroService,
		log:            logger.New(),
	}
}

// ListPublications returns every registered publication with its images and
// metadata, sorted by citation key.
func (svc *Service) ListPublications(ctx context.Context) ([]*Publication, error) {
	entries, err := svc.galleryService.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	publications := make([]*Publication, 0, len(entries))
	for _, entry := range entries {
		publications = append(publications, svc.buildPublication(ctx, entry))
	}

	return publications, nil
}

// GetPreviewIndices returns the preview index of every registered
// publication, keyed by citation key.
func (svc *Service) GetPreviewIndices(ctx context.Context) (map[string]int, error) {
	entries, err := svc.galleryService.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	indices := make(map[string]int, len(entries))
	for _, entry := range entries {
		indices[entry.CiteKey] = entry.PreviewIndex
	}

	return indices, nil
}

// AdjustPreview moves a publication's preview index by direction, clamped to
// the number of images currently on disk.
func (svc *Service) AdjustPreview(ctx context.Context, citeKey string, direction int) (*models.GalleryEntry, error) {
	images, err := svc.listImages(citeKey)
	if err != nil {
		return nil, err
	}

	return svc.galleryService.AdjustPreviewIndex(ctx, citeKey, direction, len(images))
}

// ImagePath resolves an image filename inside a publication's directory.
// Both parts are flattened to their base names so request parameters can't
// address anything outside the image tree.
func (svc *Service) ImagePath(citeKey, filename string) string {
	return filepath.Join(svc.cfg.ImagesDir(), filepath.Base(citeKey), filepath.Base(filename))
}

func (svc *Service) buildPublication(ctx context.Context, entry *models.GalleryEntry) *Publication {
	publication := &Publication{
		CiteKey:      entry.CiteKey,
		PreviewIndex: entry.PreviewIndex,
		Packed:       entry.Packed(),
		Images:       []string{},
		Tags:         []string{},
		Fields:       map[string]string{},
	}

	images, err := svc.listImages(entry.CiteKey)
	if err != nil {
		svc.log.Warn("failed to list publication images", logger.Data{"cite_key": entry.CiteKey, "error": err.Error()})
	} else {
		publication.Images = images
	}

	if svc.zoteroService == nil || entry.SourceItemID == 0 {
		return publication
	}

	tags, err := svc.zoteroService.ListItemTags(ctx, entry.SourceItemID)
	if err != nil {
		svc.log.Warn("failed to load publication tags", logger.Data{"cite_key": entry.CiteKey, "error": err.Error()})
	} else {
		publication.Tags = tags
	}

	fields, err := svc.zoteroService.ListItemFields(ctx, entry.SourceItemID)
	if err != nil {
		svc.log.Warn("failed to load publication fields", logger.Data{"cite_key": entry.CiteKey, "error": err.Error()})
	} else {
		publication.Fields = fields
	}

	publication.FileLink = svc.attachmentLink(ctx, entry)

	return publication
}

// attachmentLink points at the publication's primary attachment file in
// Zotero storage, preferring the PDF when there is one (attachments come back
// sorted by content type, which puts application/pdf first).
func (svc *Service) attachmentLink(ctx context.Context, entry *models.GalleryEntry) string {
	attachments, err := svc.zoteroService.ListAttachments(ctx, entry.SourceItemID)
	if err != nil || len(attachments) == 0 {
		return ""
	}

	path, err := svc.zoteroService.AttachmentAbsolutePath(ctx, attachments[0])
	if err != nil {
		svc.log.Warn("failed to resolve attachment link", logger.Data{"cite_key": entry.CiteKey, "error": err.Error()})
		return ""
	}

	return path
}

func (svc *Service) listImages(citeKey string) ([]string, error) {
	imageDir := filepath.Join(svc.cfg.ImagesDir(), filepath.Base(citeKey))
	if !fileutils.Exists(imageDir) {
		return []string{}, nil
	}
	return fileutils.ListFiles(imageDir)
}
