package rooms

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/json"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/navigation"
	"github.com/hilthontt/codenexus/internal/notify"
	"github.com/hilthontt/codenexus/internal/session"
)

const RoomIDParam = "roomId"

type Handler struct {
	session *session.Machine
	router  *navigation.Router
	notices *notify.Center
	logger  logging.Logger
}

func NewHandler(
	session *session.Machine,
	router *navigation.Router,
	notices *notify.Center,
	logger logging.Logger,
) *Handler {
	return &Handler{
		session: session,
		router:  router,
		notices: notices,
		logger:  logger,
	}
}

// GetEntryHandler shows the entry page. A roomId query parameter pre-fills
// the join form. When the session has just joined, the navigation guard
// moves the client into the room and the caller is redirected there.
func (h *Handler) GetEntryHandler(w http.ResponseWriter, r *http.Request) {
	if roomID := r.URL.Query().Get(RoomIDParam); roomID != "" {
		h.router.Prefill(roomID)
	}

	if path := h.router.Navigate(navigation.HomePath); path != navigation.HomePath {
		http.Redirect(w, r, path, http.StatusSeeOther)
		return
	}

	json.Write(w, http.StatusOK, h.entry())
}

func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.session.Join(r.Context(), req.Username, req.RoomID); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidUsername), errors.Is(err, domain.ErrInvalidRoomID):
			json.WriteValidationError(w, err)
		default:
			json.WriteError(w, http.StatusServiceUnavailable, err, "Could not reach the room service")
		}
		return
	}

	json.Write(w, http.StatusAccepted, h.entry())
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusCreated, createRoomResponse{RoomID: h.session.NewRoomID()})
}

func (h *Handler) EditorIndexHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, navigation.HomePath, http.StatusSeeOther)
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	user := h.session.User()
	json.Write(w, http.StatusOK, roomResponse{
		RoomID: user.RoomID,
		Status: h.session.Status().String(),
		User:   user,
		Roster: nonNil(h.session.Roster()),
		Peers:  nonNil(h.session.Peers()),
	})
}

func (h *Handler) RetryHandler(w http.ResponseWriter, r *http.Request) {
	// The reconnect loop outlives the request.
	h.session.Retry(context.WithoutCancel(r.Context()))
	json.Write(w, http.StatusAccepted, h.entry())
}

func (h *Handler) HomeHandler(w http.ResponseWriter, r *http.Request) {
	h.session.GoHome()
	json.Write(w, http.StatusOK, h.entry())
}

// RequireJoined guards the editor routes. Visitors that are not joined to
// the room are sent to the entry page with the room pre-filled.
func (h *Handler) RequireJoined(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, RoomIDParam)
		if !h.session.Joined(roomID) {
			h.router.Prefill(roomID)
			h.logger.Debug(logging.Session, logging.Navigation, "editor guard redirect", map[logging.ExtraKey]any{
				logging.RoomID: roomID,
			})
			http.Redirect(w, r, navigation.HomePath+"?"+url.Values{RoomIDParam: {roomID}}.Encode(), http.StatusSeeOther)
			return
		}

		h.router.Navigate(navigation.EditorPath(roomID))
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) entry() entryResponse {
	resp := entryResponse{
		Status:          h.session.Status().String(),
		Path:            h.router.Current(),
		PrefilledRoomID: h.router.PrefilledRoomID(),
		Notices:         []noticeResponse{},
	}
	if u := h.session.User(); !u.IsZero() {
		resp.User = &u
	}
	for _, n := range h.notices.Active() {
		resp.Notices = append(resp.Notices, noticeResponse{ID: n.ID, Kind: string(n.Kind), Message: n.Message})
	}
	return resp
}

func nonNil(users []domain.RemoteUser) []domain.RemoteUser {
	if users == nil {
		return []domain.RemoteUser{}
	}
	return users
}
