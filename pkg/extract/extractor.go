package extract

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/fileutils"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/bridger-herman/zotero-gallery/pkg/models"
	"github.com/bridger-herman/zotero-gallery/pkg/zotero"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Orchestrator walks the gallery collection and materializes image
// directories for publications that don't have one yet. Presence of a
// non-empty image directory is the sole idempotence check: re-running with
// no upstream changes touches nothing.
type Orchestrator struct {
	cfg            *config.Config
	zoteroService  *zotero.Service
	citeKeys       *zotero.CiteKeys
	galleryService *gallery.Service
	registry       *Registry
	log            logger.Logger
}

func NewOrchestrator(cfg *config.Config, zoteroService *zotero.Service, citeKeys *zotero.CiteKeys, galleryService *gallery.Service, registry *Registry) *Orchestrator {
	return &Orchestrator{
		cfg:            cfg,
		zoteroService:  zoteroService,
		citeKeys:       citeKeys,
		galleryService: galleryService,
		registry:       registry,
		log:            logger.New(),
	}
}

// Result summarizes one extraction run.
type Result struct {
	Publications    int
	NewPublications int
	Skipped         []string
}

// Extract processes every member of the gallery collection. Publications
// whose citation key can't be resolved are skipped with a warning; a missing
// collection or a failing decoder aborts the run.
func (o *Orchestrator) Extract(ctx context.Context) (*Result, error) {
	collection, err := o.zoteroService.RetrieveCollection(ctx, o.cfg.CollectionName)
	if err != nil {
		return nil, err
	}

	items, err := o.zoteroService.ListCollectionItems(ctx, collection.CollectionID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, item := range items {
		citeKey, err := o.citeKeys.Resolve(item.Key)
		if err != nil {
			o.log.Warn("no citation key registered, skipping publication", logger.Data{"item_key": item.Key})
			result.Skipped = append(result.Skipped, item.Key)
			continue
		}

		isNew, err := o.isNewPublication(citeKey)
		if err != nil {
			return nil, err
		}

		attachments, err := o.zoteroService.ListAttachments(ctx, item.ItemID)
		if err != nil {
			return nil, err
		}

		// Benign if the citation key is already registered.
		if err := o.galleryService.UpsertEntry(ctx, citeKey, item.ItemID); err != nil {
			return nil, err
		}
		result.Publications++

		if !isNew {
			continue
		}

		if err := o.materialize(ctx, citeKey, attachments); err != nil {
			return nil, err
		}
		result.NewPublications++
	}

	return result, nil
}

// isNewPublication treats "directory exists but is empty" the same as
// "directory absent": a crash between creating the directory and decoding
// into it must not leave the publication permanently imageless.
func (o *Orchestrator) isNewPublication(citeKey string) (bool, error) {
	imageDir := filepath.Join(o.cfg.ImagesDir(), citeKey)
	if !fileutils.Exists(imageDir) {
		return true, nil
	}
	return fileutils.DirIsEmpty(imageDir)
}

// materialize recreates the image directory and runs every decodable
// attachment through its decoder. Recreating (rather than reusing) the
// directory makes a previously interrupted extraction retry-safe.
func (o *Orchestrator) materialize(ctx context.Context, citeKey string, attachments []*models.ZoteroAttachment) error {
	imageDir := filepath.Join(o.cfg.ImagesDir(), citeKey)

	if err := os.RemoveAll(imageDir); err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return errors.WithStack(err)
	}

	o.log.Info("extracting images", logger.Data{"cite_key": citeKey, "attachments": len(attachments)})

	for _, attachment := range attachments {
		decoder, ok := o.registry.Lookup(attachment.ContentType)
		if !ok {
			o.log.Warn("no decoder registered for content type", logger.Data{"cite_key": citeKey, "content_type": attachment.ContentType})
			continue
		}

		sourcePath, err := o.zoteroService.AttachmentAbsolutePath(ctx, attachment)
		if err != nil {
			o.log.Warn("failed to resolve attachment path", logger.Data{"cite_key": citeKey, "content_type": attachment.ContentType, "error": err.Error()})
			continue
		}

		// Decoders are trusted collaborators; a failure here means a corrupt
		// attachment and aborts the run.
		if err := decoder.Decode(imageDir, sourcePath); err != nil {
			return errors.Wrapf(err, "decoder failed for %s (%s)", citeKey, attachment.ContentType)
		}
	}

	return nil
}
