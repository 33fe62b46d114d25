package preferences

import (
	"errors"
	"net/http"

	"github.com/hilthontt/codenexus/internal/infrastructure/json"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/settings"
)

type Handler struct {
	settings *settings.Manager
	logger   logging.Logger
}

func NewHandler(settings *settings.Manager, logger logging.Logger) *Handler {
	return &Handler{settings: settings, logger: logger}
}

func (h *Handler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.settings.Get())
}

func (h *Handler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.Read(r, &patch); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	s, err := h.settings.Update(r.Context(), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, s)
}

func (h *Handler) ResetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Reset(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.Write(w, http.StatusOK, s)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, settings.ErrInvalidValue) {
		json.WriteValidationError(w, err)
		return
	}
	json.WriteInternalError(w, h.logger, err)
}
