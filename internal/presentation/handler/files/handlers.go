package files

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/codenexus/internal/documents"
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/importer"
	"github.com/hilthontt/codenexus/internal/infrastructure/json"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
)

const (
	FileIDParam   = "fileId"
	ArchiveName   = "codenexus.zip"
	typeFile      = "file"
	typeDirectory = "directory"
)

type Handler struct {
	documents *documents.Manager
	importer  *importer.Importer
	logger    logging.Logger
}

func NewHandler(documents *documents.Manager, importer *importer.Importer, logger logging.Logger) *Handler {
	return &Handler{documents: documents, importer: importer, logger: logger}
}

func (h *Handler) GetTreeHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.tree())
}

func (h *Handler) CreateItemHandler(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	var (
		item any
		err  error
	)
	switch req.Type {
	case "", typeFile:
		item, err = h.documents.CreateFile(req.ParentID, req.Name)
	case typeDirectory:
		item, err = h.documents.CreateDirectory(req.ParentID, req.Name)
	default:
		json.WriteBadRequestError(w, "type must be file or directory")
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.Write(w, http.StatusCreated, item)
}

func (h *Handler) GetFileHandler(w http.ResponseWriter, r *http.Request) {
	f, err := h.documents.File(chi.URLParam(r, FileIDParam))
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, f)
}

func (h *Handler) UpdateContentHandler(w http.ResponseWriter, r *http.Request) {
	var req updateContentRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	id := chi.URLParam(r, FileIDParam)
	if err := h.documents.EditFile(id, req.Content, req.CursorPosition); err != nil {
		h.writeError(w, err)
		return
	}

	f, err := h.documents.File(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, f)
}

func (h *Handler) RenameItemHandler(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.documents.RenameItem(chi.URLParam(r, FileIDParam), req.Name); err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, h.tree())
}

func (h *Handler) DeleteItemHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.documents.DeleteItem(chi.URLParam(r, FileIDParam)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleDirectoryHandler(w http.ResponseWriter, r *http.Request) {
	open, err := h.documents.ToggleDirectory(chi.URLParam(r, FileIDParam))
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, toggleResponse{IsOpen: open})
}

func (h *Handler) OpenTabHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.documents.OpenFile(r.Context(), chi.URLParam(r, FileIDParam)); err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, h.tabs())
}

func (h *Handler) CloseTabHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.documents.CloseFile(chi.URLParam(r, FileIDParam)); err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, h.tabs())
}

// ImportHandler replaces a directory with imported content, taken either
// from the request entries or from a directory under the import root.
func (h *Handler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	var (
		items []domain.FileSystemItem
		err   error
	)
	switch {
	case req.Dir != "" && len(req.Entries) > 0:
		json.WriteBadRequestError(w, "send either dir or entries, not both")
		return
	case req.Dir != "":
		items, err = h.importer.FromDir(r.Context(), req.Dir)
	default:
		items, err = h.importer.FromEntries(r.Context(), req.Entries)
	}
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrDirImportOff):
			json.WriteForbiddenError(w, err)
			return
		case errors.Is(err, importer.ErrNoEntries), errors.Is(err, importer.ErrOutsideRoot):
			json.WriteValidationError(w, err)
			return
		}
		json.WriteError(w, http.StatusUnprocessableEntity, err, err.Error())
		return
	}

	if err := h.documents.ImportDirectory(r.Context(), req.DirID, items); err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, h.tree())
}

func (h *Handler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.documents.DownloadFilesAndFolders(r.Context(), &buf); err != nil {
		json.WriteInternalError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ArchiveName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, documents.ErrNotFound):
		json.WriteNotFoundError(w, err)
	case errors.Is(err, documents.ErrNameTaken):
		json.WriteConflictError(w, err)
	case errors.Is(err, documents.ErrNotAFile),
		errors.Is(err, documents.ErrNotADirectory),
		errors.Is(err, documents.ErrRootItem),
		errors.Is(err, domain.ErrInvalidName):
		json.WriteValidationError(w, err)
	case errors.Is(err, documents.ErrClosed):
		json.WriteError(w, http.StatusServiceUnavailable, err, err.Error())
	default:
		json.WriteInternalError(w, h.logger, err)
	}
}

func (h *Handler) tree() treeResponse {
	resp := h.tabs()
	resp.Tree = h.documents.Tree()
	return resp
}

func (h *Handler) tabs() treeResponse {
	resp := treeResponse{OpenFiles: h.documents.OpenFiles()}
	if resp.OpenFiles == nil {
		resp.OpenFiles = []string{}
	}
	if f, ok := h.documents.ActiveFile(); ok {
		resp.ActiveFile = f.ID
	}
	return resp
}
