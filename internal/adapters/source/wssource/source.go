package wssource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/coder/quartz"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	EventStatusChange  = "status_change"
	EventMemberRemoved = "member_removed"

	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = time.Minute
)

var (
	_ ports.PresenceSource   = (*Source)(nil)
	_ ports.IdentityResolver = (*Source)(nil)
)

// Event is one message on the presence stream.
type Event struct {
	Type           string    `json:"type"`
	EntityID       string    `json:"entity_id"`
	Name           string    `json:"name,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Status         string    `json:"status,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type entry struct {
	observation domain.Observation
	at          time.Time
}

// Source keeps the latest status pushed for every entity and serves it as a
// snapshot. Snapshots fail while the stream is disconnected.
type Source struct {
	url        string
	token      string
	clock      quartz.Clock
	logger     slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu        sync.RWMutex
	connected bool
	latest    map[domain.EntityID]entry
	removed   map[domain.EntityID]struct{}
}

type Option func(*Source)

func WithToken(token string) Option {
	return func(s *Source) { s.token = token }
}

func WithClock(clock quartz.Clock) Option {
	return func(s *Source) { s.clock = clock }
}

func WithBackoff(minBackoff, maxBackoff time.Duration) Option {
	return func(s *Source) {
		s.minBackoff = minBackoff
		s.maxBackoff = maxBackoff
	}
}

func New(url string, logger slog.Logger, opts ...Option) *Source {
	s := &Source{
		url:        url,
		clock:      quartz.NewReal(),
		logger:     logger,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		latest:     map[domain.EntityID]entry{},
		removed:    map[domain.EntityID]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = s.minBackoff
	}
	return s
}

// Run keeps the stream connected until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		connected, err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = s.minBackoff
		}
		s.logger.Warn(ctx, "presence stream disconnected, reconnecting",
			slog.F("backoff", backoff.String()),
			slog.Error(err),
		)

		timer := s.clock.NewTimer(backoff, "wssource", "backoff")
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func (s *Source) consume(ctx context.Context) (bool, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, fmt.Errorf("dial presence stream: %w", err)
	}
	defer conn.CloseNow()

	s.resetOnConnect()
	defer s.setConnected(false)
	s.logger.Info(ctx, "presence stream connected", slog.F("url", s.url))

	for {
		var event Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return true, fmt.Errorf("read presence event: %w", err)
		}
		s.apply(event)
	}
}

// resetOnConnect marks every status carried over from a previous connection
// offline, since changes missed while disconnected are never replayed as
// events. A server sending full state on connect overwrites them.
func (s *Source) resetOnConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.latest {
		e.observation.Status = domain.StatusOffline
		e.at = time.Time{}
		s.latest[id] = e
	}
	s.connected = true
}

func (s *Source) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

func (s *Source) apply(event Event) {
	id := domain.EntityID(event.EntityID).Normalize()
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case EventStatusChange:
		if current, ok := s.latest[id]; ok && !event.Timestamp.IsZero() && event.Timestamp.Before(current.at) {
			return
		}
		name := event.Name
		if name == "" {
			name = s.latest[id].observation.DisplayName
		}
		s.latest[id] = entry{
			observation: domain.Observation{EntityID: id, DisplayName: name, Status: domain.ParseStatus(event.Status)},
			at:          event.Timestamp,
		}
		delete(s.removed, id)
	case EventMemberRemoved:
		delete(s.latest, id)
		s.removed[id] = struct{}{}
	}
}

func (s *Source) Snapshot(context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, domain.ErrSnapshotUnavailable
	}

	snapshot := make(domain.Snapshot, 0, len(s.latest))
	for _, e := range s.latest {
		snapshot = append(snapshot, e.observation)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].EntityID < snapshot[j].EntityID })
	return snapshot, nil
}

// ResolveDisplayName answers from the stream. Entities announced as removed
// are not found; entities never seen resolve to an empty name.
func (s *Source) ResolveDisplayName(_ context.Context, id domain.EntityID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.removed[id]; ok {
		return "", domain.ErrEntityNotFound
	}
	if e, ok := s.latest[id]; ok {
		return e.observation.DisplayName, nil
	}
	if !s.connected {
		return "", errors.New("presence stream disconnected")
	}
	return "", nil
}
