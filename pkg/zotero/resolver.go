package zotero

import (
	"path/filepath"
	"strings"

	"github.com/bridger-herman/zotero-gallery/pkg/models"
)

// storagePrefix marks attachment paths that live in Zotero's managed storage
// directory, e.g. "storage:paper.pdf".
const storagePrefix = "storage:"

// ResolveAttachmentPath maps an attachment row to an absolute path inside
// managed storage: <storageDir>/<attachmentKey>/<filename>.
func ResolveAttachmentPath(storageDir, attachmentKey string, attachment *models.ZoteroAttachment) string {
	filename := strings.TrimPrefix(attachment.Path, storagePrefix)
	return filepath.Join(storageDir, attachmentKey, filename)
}
