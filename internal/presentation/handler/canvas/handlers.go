package canvas

import (
	"net/http"

	"github.com/hilthontt/codenexus/internal/drawing"
	"github.com/hilthontt/codenexus/internal/infrastructure/json"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
)

type Handler struct {
	drawing *drawing.Manager
	logger  logging.Logger
}

func NewHandler(drawing *drawing.Manager, logger logging.Logger) *Handler {
	return &Handler{drawing: drawing, logger: logger}
}

func (h *Handler) GetDrawingHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, drawingResponse{Snapshot: h.drawing.Snapshot()})
}

// UpdateDrawingHandler records a local drawing change. Peers pick it up the
// next time they ask for the drawing.
func (h *Handler) UpdateDrawingHandler(w http.ResponseWriter, r *http.Request) {
	var req updateDrawingRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if len(req.Snapshot) == 0 {
		json.WriteBadRequestError(w, "snapshot is required")
		return
	}

	h.drawing.SetSnapshot(req.Snapshot)
	json.Write(w, http.StatusOK, drawingResponse{Snapshot: h.drawing.Snapshot()})
}

func (h *Handler) RequestDrawingHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.drawing.RequestDrawing(); err != nil {
		json.WriteError(w, http.StatusServiceUnavailable, err, "Could not reach the room service")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
