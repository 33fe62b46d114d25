package health

import (
	"net/http"
	"time"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/json"
)

type Connection interface {
	Connected() bool
}

type Session interface {
	Status() domain.SessionStatus
}

type Handler struct {
	conn      Connection
	session   Session
	startTime time.Time
}

func NewHandler(conn Connection, session Session) *Handler {
	return &Handler{conn: conn, session: session, startTime: time.Now()}
}

// GetHealth reports liveness. A failed connection makes the client
// unhealthy; every other state is reported as ok.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.session.Status()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Connected: h.conn.Connected(),
		Session:   status.String(),
	}

	if status == domain.StatusConnectionFailed {
		resp.Status = "unhealthy"
		json.Write(w, http.StatusServiceUnavailable, resp)
		return
	}
	json.Write(w, http.StatusOK, resp)
}
