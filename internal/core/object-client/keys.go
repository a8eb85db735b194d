package objectclient

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// NewKey builds an object key of the form category/ownerID/<uuid><ext>.
// The client's file name only contributes its extension.
func NewKey(category, ownerID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return path.Join(strings.Trim(category, "/"), ownerID, uuid.NewString()+ext)
}
