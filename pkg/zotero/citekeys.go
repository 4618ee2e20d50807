package zotero

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const citeKeyBlobName = "better-bibtex.citekey"

// CiteKeys maps Zotero item keys to Better BibTeX citation keys. The whole
// table is one JSON blob inside better-bibtex.sqlite, so it is loaded once at
// startup and read from memory afterwards.
type CiteKeys struct {
	byItemKey map[string]string
}

type citeKeyRecord struct {
	ItemKey string `json:"itemKey"`
	Citekey string `json:"citekey"`
}

type citeKeyBlob struct {
	Data []citeKeyRecord `json:"data"`
}

// NewCiteKeys builds a resolver from an already-loaded item key mapping.
func NewCiteKeys(byItemKey map[string]string) *CiteKeys {
	return &CiteKeys{byItemKey: byItemKey}
}

// LoadCiteKeys reads the citation key table from the Better BibTeX database.
func LoadCiteKeys(ctx context.Context, db *bun.DB) (*CiteKeys, error) {
	var raw string

	err := db.
		NewRaw(`SELECT data FROM "better-bibtex" WHERE name = ?`, citeKeyBlobName).
		Scan(ctx, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Better BibTeX citation key table")
		}
		return nil, errors.WithStack(err)
	}

	blob := citeKeyBlob{}
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return nil, errors.Wrap(err, "failed to parse better-bibtex citekey data")
	}

	byItemKey := make(map[string]string, len(blob.Data))
	for _, record := range blob.Data {
		byItemKey[record.ItemKey] = record.Citekey
	}

	return &CiteKeys{byItemKey: byItemKey}, nil
}

// Resolve maps an item key to its citation key. A missing registration means
// the bibliography itself is malformed and has to be fixed in Zotero, so the
// error is propagated rather than papered over.
func (ck *CiteKeys) Resolve(itemKey string) (string, error) {
	citeKey, ok := ck.byItemKey[itemKey]
	if !ok {
		return "", errcodes.NotFound("Citation key for item " + itemKey)
	}
	return citeKey, nil
}

// Len returns the number of registered citation keys.
func (ck *CiteKeys) Len() int {
	return len(ck.byItemKey)
}
