package models

import (
	"github.com/uptrace/bun"
)

// Read-only row models for the Zotero database. Column names follow Zotero's
// own camelCase schema; this program never writes any of these tables.

type ZoteroItem struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ItemID int    `bun:"itemID,pk" json:"item_id"`
	Key    string `bun:"key" json:"key"`
}

type ZoteroCollection struct {
	bun.BaseModel `bun:"table:collections,alias:c"`

	CollectionID   int    `bun:"collectionID,pk" json:"collection_id"`
	CollectionName string `bun:"collectionName" json:"collection_name"`
}

type ZoteroCollectionItem struct {
	bun.BaseModel `bun:"table:collectionItems,alias:ci"`

	CollectionID int `bun:"collectionID" json:"collection_id"`
	ItemID       int `bun:"itemID" json:"item_id"`
}

// ZoteroAttachment is a row of itemAttachments. Path carries Zotero's
// "storage:" prefix followed by the stored filename.
type ZoteroAttachment struct {
	bun.BaseModel `bun:"table:itemAttachments,alias:ia"`

	ItemID       int    `bun:"itemID,pk" json:"item_id"`
	ParentItemID int    `bun:"parentItemID" json:"parent_item_id"`
	ContentType  string `bun:"contentType" json:"content_type"`
	Path         string `bun:"path" json:"path"`
}

type ZoteroTag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	TagID int    `bun:"tagID,pk" json:"tag_id"`
	Name  string `bun:"name" json:"name"`
}

type ZoteroItemTag struct {
	bun.BaseModel `bun:"table:itemTags,alias:it"`

	ItemID int `bun:"itemID" json:"item_id"`
	TagID  int `bun:"tagID" json:"tag_id"`
}

type ZoteroItemData struct {
	bun.BaseModel `bun:"table:itemData,alias:id"`

	ItemID  int `bun:"itemID" json:"item_id"`
	FieldID int `bun:"fieldID" json:"field_id"`
	ValueID int `bun:"valueID" json:"value_id"`
}

type ZoteroField struct {
	bun.BaseModel `bun:"table:fields,alias:f"`

	FieldID   int    `bun:"fieldID,pk" json:"field_id"`
	FieldName string `bun:"fieldName" json:"field_name"`
}

type ZoteroItemDataValue struct {
	bun.BaseModel `bun:"table:itemDataValues,alias:idv"`

	ValueID int    `bun:"valueID,pk" json:"value_id"`
	Value   string `bun:"value" json:"value"`
}
