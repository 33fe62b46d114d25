package files

import (
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/importer"
)

type createItemRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

type updateContentRequest struct {
	Content        string `json:"content"`
	CursorPosition int    `json:"cursorPosition"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type importRequest struct {
	DirID   string           `json:"dirId"`
	Dir     string           `json:"dir"`
	Entries []importer.Entry `json:"entries"`
}

type toggleResponse struct {
	IsOpen bool `json:"isOpen"`
}

type treeResponse struct {
	Tree       *domain.Directory `json:"tree,omitempty"`
	OpenFiles  []string          `json:"openFiles"`
	ActiveFile string            `json:"activeFile,omitempty"`
}
