package gallery

import (
	"context"
	"database/sql"

	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Service owns the gallery table. Every operation is a single row and a
// single implicit transaction so an interrupted extraction run can never
// corrupt entries it already committed.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) RetrieveEntry(ctx context.Context, citeKey string) (*models.GalleryEntry, error) {
	entry := &models.GalleryEntry{}

	err := svc.db.
		NewSelect().
		Model(entry).
		Where("g.cite_key = ?", citeKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Gallery entry " + citeKey)
		}
		return nil, errors.WithStack(err)
	}

	return entry, nil
}

// UpsertEntry registers a publication with a default preview index of 0. An
// already-registered citation key keeps its existing state untouched; the
// orchestrator re-registers every publication on every run.
func (svc *Service) UpsertEntry(ctx context.Context, citeKey string, sourceItemID int) error {
	entry := &models.GalleryEntry{
		CiteKey:      citeKey,
		SourceItemID: sourceItemID,
	}

	_, err := svc.db.
		NewInsert().
		Model(entry).
		On("CONFLICT (cite_key) DO NOTHING").
		Exec(ctx)
	if err != nil && !errcodes.IsUniqueConstraint(err) {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) SetPreviewIndex(ctx context.Context, citeKey string, index int) error {
	result, err := svc.db.
		NewUpdate().
		Model((*models.GalleryEntry)(nil)).
		Set("preview_index = ?", index).
		Where("cite_key = ?", citeKey).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Gallery entry " + citeKey)
	}

	return nil
}

// AdjustPreviewIndex moves the preview index by direction (+1/-1), clamped
// to [0, imageCount]. The clamp deliberately allows the index to reach
// imageCount itself, matching behavior the gallery page has always had.
// TODO: confirm whether the upper bound should be imageCount-1 before
// changing it; existing gallery databases may hold indices at the bound.
//
// The whole read-modify-write runs as one conditional UPDATE so concurrent
// requests for the same citation key cannot interleave. Packed entries are
// left alone.
func (svc *Service) AdjustPreviewIndex(ctx context.Context, citeKey string, direction, imageCount int) (*models.GalleryEntry, error) {
	_, err := svc.db.
		NewUpdate().
		Model((*models.GalleryEntry)(nil)).
		Set("preview_index = MAX(0, MIN(preview_index + ?, ?))", direction, imageCount).
		Where("cite_key = ?", citeKey).
		Where("preview_index != ?", models.PreviewIndexPacked).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return svc.RetrieveEntry(ctx, citeKey)
}

// MarkPacked flips the entry's preview index to the packed sentinel.
func (svc *Service) MarkPacked(ctx context.Context, citeKey string) error {
	return svc.SetPreviewIndex(ctx, citeKey, models.PreviewIndexPacked)
}

func (svc *Service) RemoveEntry(ctx context.Context, citeKey string) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.GalleryEntry)(nil)).
		Where("cite_key = ?", citeKey).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListEntries(ctx context.Context) ([]*models.GalleryEntry, error) {
	var entries []*models.GalleryEntry

	err := svc.db.
		NewSelect().
		Model(&entries).
		Order("g.cite_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return entries, nil
}
