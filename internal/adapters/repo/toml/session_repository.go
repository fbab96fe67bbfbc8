package toml

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/spf13/viper"
)

const (
	sessionsPathKey  = "state.sessions_path"
	sessionsFileName = "sessions.toml"
)

type SessionRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(cfg *viper.Viper) (*SessionRepository, error) {
	path, err := resolvePath(cfg, sessionsPathKey, sessionsFileName)
	if err != nil {
		return nil, err
	}

	return &SessionRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *SessionRepository) Path() string {
	return r.path
}

func (r *SessionRepository) Load(ctx context.Context) ([]domain.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var file sessionsFileSchema
	if err := readTOMLFile(r.path, "sessions", &file); err != nil {
		return nil, err
	}

	records := make([]domain.PresenceRecord, 0, len(file.Records))
	for _, entry := range file.Records {
		record, err := fromRecordSchema(entry)
		if err != nil {
			return nil, fmt.Errorf("decode record %q: %w", entry.EntityID, err)
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *SessionRepository) Save(ctx context.Context, records []domain.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file := sessionsFileSchema{Records: make([]recordSchema, 0, len(records))}
	for _, record := range records {
		file.Records = append(file.Records, toRecordSchema(record))
	}
	sort.Slice(file.Records, func(i, j int) bool {
		return file.Records[i].EntityID < file.Records[j].EntityID
	})

	return writeTOMLFile(r.path, "sessions", &file)
}

func toRecordSchema(record domain.PresenceRecord) recordSchema {
	sessions := make([]sessionSchema, 0, len(record.Sessions))
	for _, session := range record.Sessions {
		sessions = append(sessions, sessionSchema{
			Start:           formatTime(session.Start),
			End:             formatTime(session.End),
			DurationMinutes: session.DurationMinutes,
		})
	}

	var open *openSessionSchema
	if record.Open != nil {
		open = &openSessionSchema{Start: formatTime(record.Open.Start)}
	}

	return recordSchema{
		EntityID:    string(record.EntityID),
		DisplayName: record.DisplayName,
		Sessions:    sessions,
		OpenSession: open,
	}
}

func fromRecordSchema(schema recordSchema) (domain.PresenceRecord, error) {
	var sessions []domain.Session
	for _, entry := range schema.Sessions {
		start, err := parseTime(entry.Start)
		if err != nil {
			return domain.PresenceRecord{}, err
		}
		end, err := parseTime(entry.End)
		if err != nil {
			return domain.PresenceRecord{}, err
		}
		sessions = append(sessions, domain.Session{
			Start:           start,
			End:             end,
			DurationMinutes: entry.DurationMinutes,
		})
	}

	record := domain.PresenceRecord{
		EntityID:    domain.EntityID(schema.EntityID),
		DisplayName: schema.DisplayName,
		Sessions:    sessions,
	}

	if schema.OpenSession != nil {
		start, err := parseTime(schema.OpenSession.Start)
		if err != nil {
			return domain.PresenceRecord{}, err
		}
		record.Open = &domain.Session{Start: start}
	}

	return record, nil
}
