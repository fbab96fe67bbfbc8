package toml

import "fmt"

const (
	currentSubscriptionsSchemaVersion = 1
	currentSessionsSchemaVersion      = 1
	currentScheduleSchemaVersion      = 1
)

type subscriptionsFileSchema struct {
	Version  int      `toml:"version"`
	Entities []string `toml:"entities"`
}

func (s *subscriptionsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSubscriptionsSchemaVersion
	}
}

func (s *subscriptionsFileSchema) validateVersion() error {
	if s.Version > currentSubscriptionsSchemaVersion {
		return fmt.Errorf("unsupported subscriptions schema version %d (current %d)", s.Version, currentSubscriptionsSchemaVersion)
	}

	return nil
}

type sessionsFileSchema struct {
	Version int            `toml:"version"`
	Records []recordSchema `toml:"records"`
}

func (s *sessionsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSessionsSchemaVersion
	}
}

func (s *sessionsFileSchema) validateVersion() error {
	if s.Version > currentSessionsSchemaVersion {
		return fmt.Errorf("unsupported sessions schema version %d (current %d)", s.Version, currentSessionsSchemaVersion)
	}

	return nil
}

type recordSchema struct {
	EntityID    string             `toml:"entity_id"`
	DisplayName string             `toml:"display_name"`
	Sessions    []sessionSchema    `toml:"sessions"`
	OpenSession *openSessionSchema `toml:"open_session,omitempty"`
}

type sessionSchema struct {
	Start           string  `toml:"start"`
	End             string  `toml:"end"`
	DurationMinutes float64 `toml:"duration_minutes"`
}

type openSessionSchema struct {
	Start string `toml:"start"`
}

type scheduleFileSchema struct {
	Version      int    `toml:"version"`
	Enabled      bool   `toml:"enabled"`
	Destination  string `toml:"destination"`
	LastReportAt string `toml:"last_report_at"`
}

func (s *scheduleFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentScheduleSchemaVersion
	}
}

func (s *scheduleFileSchema) validateVersion() error {
	if s.Version > currentScheduleSchemaVersion {
		return fmt.Errorf("unsupported schedule schema version %d (current %d)", s.Version, currentScheduleSchemaVersion)
	}

	return nil
}
