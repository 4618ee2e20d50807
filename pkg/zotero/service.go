package zotero

import (
	"context"
	"database/sql"

	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Service reads the local copy of zotero.sqlite. Everything here is
// read-only; curation state lives in the gallery database instead.
type Service struct {
	db  *bun.DB
	cfg *config.Config
}

func NewService(db *bun.DB, cfg *config.Config) *Service {
	return &Service{db, cfg}
}

func (svc *Service) RetrieveCollection(ctx context.Context, name string) (*models.ZoteroCollection, error) {
	collection := &models.ZoteroCollection{}

	err := svc.db.
		NewSelect().
		Model(collection).
		Where("c.collectionName = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Collection " + name)
		}
		return nil, errors.WithStack(err)
	}

	return collection, nil
}

func (svc *Service) RetrieveItem(ctx context.Context, itemID int) (*models.ZoteroItem, error) {
	item := &models.ZoteroItem{}

	err := svc.db.
		NewSelect().
		Model(item).
		Where("i.itemID = ?", itemID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Item")
		}
		return nil, errors.WithStack(err)
	}

	return item, nil
}

// ListCollectionItems returns the member items of a collection in a stable
// order.
func (svc *Service) ListCollectionItems(ctx context.Context, collectionID int) ([]*models.ZoteroItem, error) {
	var items []*models.ZoteroItem

	err := svc.db.
		NewSelect().
		Model(&items).
		Join("INNER JOIN collectionItems ci ON ci.itemID = i.itemID").
		Where("ci.collectionID = ?", collectionID).
		Order("i.itemID ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return items, nil
}

// ListAttachments returns an item's attachments sorted by content type so
// that extraction order is reproducible across runs and machines.
func (svc *Service) ListAttachments(ctx context.Context, parentItemID int) ([]*models.ZoteroAttachment, error) {
	var attachments []*models.ZoteroAttachment

	err := svc.db.
		NewSelect().
		Model(&attachments).
		Where("ia.parentItemID = ?", parentItemID).
		Order("ia.contentType ASC", "ia.itemID ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return attachments, nil
}

// AttachmentAbsolutePath resolves an attachment row to its file in managed
// storage. The storage key is the attachment's own entry in the items table,
// not its parent's.
func (svc *Service) AttachmentAbsolutePath(ctx context.Context, attachment *models.ZoteroAttachment) (string, error) {
	item, err := svc.RetrieveItem(ctx, attachment.ItemID)
	if err != nil {
		return "", err
	}

	return ResolveAttachmentPath(svc.cfg.StorageDir(), item.Key, attachment), nil
}

func (svc *Service) ListItemTags(ctx context.Context, itemID int) ([]string, error) {
	var tags []string

	err := svc.db.
		NewSelect().
		Model((*models.ZoteroTag)(nil)).
		Column("t.name").
		Join("INNER JOIN itemTags it ON it.tagID = t.tagID").
		Where("it.itemID = ?", itemID).
		Order("t.name ASC").
		Scan(ctx, &tags)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return tags, nil
}

// ListItemFields returns the bibliographic field/value pairs of an item
// (title, date, DOI, ...).
func (svc *Service) ListItemFields(ctx context.Context, itemID int) (map[string]string, error) {
	var rows []struct {
		FieldName string `bun:"fieldName"`
		Value     string `bun:"value"`
	}

	err := svc.db.
		NewSelect().
		Model((*models.ZoteroItemData)(nil)).
		Column("f.fieldName", "idv.value").
		Join("INNER JOIN fields f ON f.fieldID = id.fieldID").
		Join("INNER JOIN itemDataValues idv ON idv.valueID = id.valueID").
		Where("id.itemID = ?", itemID).
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	fields := make(map[string]string, len(rows))
	for _, row := range rows {
		fields[row.FieldName] = row.Value
	}

	return fields, nil
}

// FindTaggedItem returns the item carrying the reserved sync marker tag. The
// placeholder entry must be tagged by hand once; without it there is nowhere
// to attach the sync bundle.
func (svc *Service) FindTaggedItem(ctx context.Context, tagName string) (*models.ZoteroItem, error) {
	item := &models.ZoteroItem{}

	err := svc.db.
		NewSelect().
		Model(item).
		Join("INNER JOIN itemTags it ON it.itemID = i.itemID").
		Join("INNER JOIN tags t ON t.tagID = it.tagID").
		Where("t.name = ?", tagName).
		Order("i.itemID ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.SyncTargetMissing(tagName)
		}
		return nil, errors.WithStack(err)
	}

	return item, nil
}
