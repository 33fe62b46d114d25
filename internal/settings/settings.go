// Package settings owns the editor preferences and persists them under one
// storage key.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
)

const StorageKey = "settings"

var ErrInvalidValue = errors.New("settings: invalid value")

type Settings struct {
	Theme      string `json:"theme"`
	Language   string `json:"language"`
	FontSize   int    `json:"fontSize"`
	FontFamily string `json:"fontFamily"`
	TabSize    int    `json:"tabSize"`
}

func Defaults() Settings {
	return Settings{
		Theme:      "dark",
		Language:   "javascript",
		FontSize:   14,
		FontFamily: "monospace",
		TabSize:    4,
	}
}

// Patch carries the fields of a partial update. Nil fields are untouched.
type Patch struct {
	Theme      *string `json:"theme,omitempty"`
	Language   *string `json:"language,omitempty"`
	FontSize   *int    `json:"fontSize,omitempty"`
	FontFamily *string `json:"fontFamily,omitempty"`
	TabSize    *int    `json:"tabSize,omitempty"`
}

type Listener func(Settings)

type Manager struct {
	store  storage.Store
	logger logging.Logger

	mu        sync.RWMutex
	current   Settings
	listeners []Listener
}

// NewManager restores persisted settings. Missing or unreadable fields
// fall back to their defaults one by one; storage errors are never fatal.
func NewManager(ctx context.Context, store storage.Store, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{store: store, logger: logger, current: Defaults()}
	m.current = m.load(ctx)
	return m
}

func (m *Manager) load(ctx context.Context) Settings {
	s := Defaults()

	var raw map[string]json.RawMessage
	if err := m.store.Get(ctx, StorageKey, &raw); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn(logging.Storage, logging.Settings, "discarding stored settings", map[logging.ExtraKey]any{
				logging.Key:          StorageKey,
				logging.ErrorMessage: err.Error(),
			})
		}
		return s
	}

	decodeString(raw, "theme", &s.Theme)
	decodeString(raw, "language", &s.Language)
	decodeString(raw, "fontFamily", &s.FontFamily)
	decodePositive(raw, "fontSize", &s.FontSize)
	decodePositive(raw, "tabSize", &s.TabSize)
	return s
}

func decodeString(raw map[string]json.RawMessage, key string, dst *string) {
	var v string
	if data, ok := raw[key]; ok && json.Unmarshal(data, &v) == nil && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func decodePositive(raw map[string]json.RawMessage, key string, dst *int) {
	var v int
	if data, ok := raw[key]; ok && json.Unmarshal(data, &v) == nil && v > 0 {
		*dst = v
	}
}

func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update applies p, persists the result and notifies listeners.
func (m *Manager) Update(ctx context.Context, p Patch) (Settings, error) {
	if err := p.validate(); err != nil {
		return m.Get(), err
	}

	m.mu.Lock()
	next := m.current
	if p.Theme != nil {
		next.Theme = strings.TrimSpace(*p.Theme)
	}
	if p.Language != nil {
		next.Language = NormalizeLanguage(*p.Language)
	}
	if p.FontSize != nil {
		next.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		next.FontFamily = strings.TrimSpace(*p.FontFamily)
	}
	if p.TabSize != nil {
		next.TabSize = *p.TabSize
	}
	changed := next != m.current
	m.current = next
	m.mu.Unlock()

	if !changed {
		return next, nil
	}
	return next, m.commit(ctx, next)
}

func (p Patch) validate() error {
	if p.Theme != nil && strings.TrimSpace(*p.Theme) == "" {
		return errors.Join(ErrInvalidValue, errors.New("theme is empty"))
	}
	if p.Language != nil && strings.TrimSpace(*p.Language) == "" {
		return errors.Join(ErrInvalidValue, errors.New("language is empty"))
	}
	if p.FontFamily != nil && strings.TrimSpace(*p.FontFamily) == "" {
		return errors.Join(ErrInvalidValue, errors.New("font family is empty"))
	}
	if p.FontSize != nil && *p.FontSize <= 0 {
		return errors.Join(ErrInvalidValue, errors.New("font size must be positive"))
	}
	if p.TabSize != nil && *p.TabSize <= 0 {
		return errors.Join(ErrInvalidValue, errors.New("tab size must be positive"))
	}
	return nil
}

// SetLanguage is the hook the document model calls when a file becomes
// active.
func (m *Manager) SetLanguage(ctx context.Context, lang string) error {
	_, err := m.Update(ctx, Patch{Language: &lang})
	return err
}

// Reset restores and persists the defaults.
func (m *Manager) Reset(ctx context.Context) (Settings, error) {
	d := Defaults()
	m.mu.Lock()
	m.current = d
	m.mu.Unlock()
	return d, m.commit(ctx, d)
}

func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager) commit(ctx context.Context, s Settings) error {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(s)
	}

	if err := m.store.Set(ctx, StorageKey, s); err != nil {
		m.logger.Warn(logging.Storage, logging.Persist, "failed to persist settings", map[logging.ExtraKey]any{
			logging.Key:          StorageKey,
			logging.ErrorMessage: err.Error(),
		})
		return err
	}
	return nil
}
