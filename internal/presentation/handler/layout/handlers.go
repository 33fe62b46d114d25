package layout

import (
	"errors"
	"net/http"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/json"
	"github.com/hilthontt/codenexus/internal/view"
)

var ErrUnknownActivity = errors.New("layout: unknown activity")

type Handler struct {
	view *view.Coordinator
}

func NewHandler(view *view.Coordinator) *Handler {
	return &Handler{view: view}
}

func (h *Handler) GetLayoutHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.view.State())
}

// UpdateLayoutHandler applies the requested changes in order: view
// selection, sidebar, then activity.
func (h *Handler) UpdateLayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req updateLayoutRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if req.Activity != nil && !validActivity(*req.Activity) {
		json.WriteValidationError(w, ErrUnknownActivity)
		return
	}

	ctx := r.Context()
	if req.SelectView != nil {
		if _, err := h.view.SelectView(ctx, *req.SelectView); err != nil {
			json.WriteValidationError(w, err)
			return
		}
	}
	if req.SidebarOpen != nil {
		h.view.SetSidebarOpen(ctx, *req.SidebarOpen)
	}
	switch {
	case req.Activity != nil:
		h.view.SetActivity(ctx, *req.Activity)
	case req.ToggleActivity:
		h.view.ToggleActivity(ctx)
	}

	json.Write(w, http.StatusOK, h.view.State())
}

func validActivity(a domain.ActivityState) bool {
	return a == domain.ActivityCoding || a == domain.ActivityDrawing
}
