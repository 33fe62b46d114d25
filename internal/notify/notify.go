// Package notify is the transient notification surface. Notices are logged
// and kept in a bounded list for the control API to show.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindLoading Kind = "loading"
)

type Notice struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Dismissed bool      `json:"dismissed"`
}

type Notifier interface {
	Success(msg string) string
	Error(msg string) string
	Loading(msg string) string
	// Dismiss hides one notice, or all of them when id is empty.
	Dismiss(id string)
}

const defaultLimit = 50

type Center struct {
	logger logging.Logger
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	notices []Notice
}

func NewCenter(logger logging.Logger, limit int) *Center {
	if logger == nil {
		logger = logging.NewNop()
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Center{logger: logger, limit: limit, now: time.Now}
}

func (c *Center) Success(msg string) string { return c.push(KindSuccess, msg) }
func (c *Center) Error(msg string) string   { return c.push(KindError, msg) }
func (c *Center) Loading(msg string) string { return c.push(KindLoading, msg) }

func (c *Center) push(kind Kind, msg string) string {
	n := Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   msg,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	c.notices = append(c.notices, n)
	if over := len(c.notices) - c.limit; over > 0 {
		c.notices = append([]Notice(nil), c.notices[over:]...)
	}
	c.mu.Unlock()

	extra := map[logging.ExtraKey]any{logging.Status: string(kind)}
	switch kind {
	case KindError:
		c.logger.Warn(logging.General, logging.Notify, msg, extra)
	default:
		c.logger.Info(logging.General, logging.Notify, msg, extra)
	}
	return n.ID
}

func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notices {
		if id == "" || c.notices[i].ID == id {
			c.notices[i].Dismissed = true
		}
	}
}

// Recent returns every retained notice, oldest first.
func (c *Center) Recent() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

// Active returns the notices not yet dismissed.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Notice
	for _, n := range c.notices {
		if !n.Dismissed {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the newest notice of kind, if any.
func (c *Center) Last(kind Kind) (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.notices) - 1; i >= 0; i-- {
		if c.notices[i].Kind == kind {
			return c.notices[i], true
		}
	}
	return Notice{}, false
}

var _ Notifier = (*Center)(nil)
