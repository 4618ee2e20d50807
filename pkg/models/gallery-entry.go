package models

import (
	"github.com/uptrace/bun"
)

// PreviewIndexPacked is the sentinel preview index for a packed publication.
// A packed publication keeps exactly one image, so an index into its image
// list is no longer meaningful.
const PreviewIndexPacked = -1

// GalleryEntry is one row of curation state per publication, keyed by the
// Better BibTeX citation key. This table is the sole source of curation
// truth; the image tree on disk is the source of truth for which
// publications exist.
type GalleryEntry struct {
	bun.BaseModel `bun:"table:gallery,alias:g"`

	CiteKey      string `bun:"cite_key,pk" json:"cite_key"`
	PreviewIndex int    `bun:"preview_index" json:"preview_index"`
	SourceItemID int    `bun:"source_item_id,nullzero" json:"source_item_id"`
}

// Packed reports whether the entry has been collapsed to a single image.
func (e *GalleryEntry) Packed() bool {
	return e.PreviewIndex == PreviewIndexPacked
}
