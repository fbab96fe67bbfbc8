// Package legacy reads the JSON files written by the previous bot so their
// history can be imported into the TOML stores.
package legacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
)

var ErrUnsupportedFormat = errors.New("unsupported legacy format")

// Naive timestamps were written in the host's local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

type userTimes struct {
	Username       string          `json:"username"`
	OnlineTimes    []string        `json:"online_times"`
	Sessions       []legacySession `json:"sessions"`
	CurrentSession *legacySession  `json:"current_session"`
}

type legacySession struct {
	StartTime string   `json:"start_time"`
	Duration  *float64 `json:"duration"`
}

// Data is everything recovered from a pair of legacy files.
type Data struct {
	Subscriptions []domain.EntityID
	Records       []domain.PresenceRecord
	// Skipped counts timestamps or sessions that could not be parsed.
	Skipped int
}

// Load reads the users and times files. Either path may be empty.
func Load(usersPath, timesPath string, loc *time.Location) (Data, error) {
	var data Data
	if usersPath != "" {
		raw, err := os.ReadFile(usersPath)
		if err != nil {
			return Data{}, fmt.Errorf("read %s: %w", usersPath, err)
		}
		data.Subscriptions, err = ReadUsers(bytes.NewReader(raw))
		if err != nil {
			return Data{}, fmt.Errorf("parse %s: %w", usersPath, err)
		}
	}
	if timesPath != "" {
		raw, err := os.ReadFile(timesPath)
		if err != nil {
			return Data{}, fmt.Errorf("read %s: %w", timesPath, err)
		}
		data.Records, data.Skipped, err = ReadTimes(bytes.NewReader(raw), loc)
		if err != nil {
			return Data{}, fmt.Errorf("parse %s: %w", timesPath, err)
		}
	}
	return data, nil
}

// ReadUsers decodes the subscription list. Ids may be JSON numbers or strings.
func ReadUsers(r io.Reader) ([]domain.EntityID, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	set := domain.NewSubscriptionSet()
	for _, item := range raw {
		switch v := item.(type) {
		case json.Number:
			set.Add(domain.EntityID(v.String()))
		case string:
			if id := domain.EntityID(v).Normalize(); id != "" {
				set.Add(id)
			}
		default:
			return nil, fmt.Errorf("%w: user id %v", ErrUnsupportedFormat, item)
		}
	}
	return set.Sorted(), nil
}

// ReadTimes decodes the per-user history. The oldest format stored bare
// online timestamps, which become zero-length sessions; the newer one stored
// sessions with a duration in minutes.
func ReadTimes(r io.Reader, loc *time.Location) ([]domain.PresenceRecord, int, error) {
	if loc == nil {
		loc = time.Local
	}

	var raw map[string]userTimes
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	skipped := 0
	records := make([]domain.PresenceRecord, 0, len(raw))
	for key, entry := range raw {
		id := domain.EntityID(key).Normalize()
		if id == "" {
			continue
		}
		record := domain.PresenceRecord{EntityID: id, DisplayName: entry.Username}

		for _, stamp := range entry.OnlineTimes {
			at, err := parseTimestamp(stamp, loc)
			if err != nil {
				skipped++
				continue
			}
			record.Sessions = append(record.Sessions, domain.Session{Start: at, End: at})
		}

		for _, s := range entry.Sessions {
			start, err := parseTimestamp(s.StartTime, loc)
			if err != nil || s.Duration == nil || *s.Duration < 0 || math.IsNaN(*s.Duration) {
				skipped++
				continue
			}
			end := start.Add(time.Duration(*s.Duration * float64(time.Minute)))
			record.Sessions = append(record.Sessions, domain.Session{Start: start, End: end, DurationMinutes: *s.Duration})
		}

		if entry.CurrentSession != nil {
			start, err := parseTimestamp(entry.CurrentSession.StartTime, loc)
			if err != nil {
				skipped++
			} else {
				record.Open = &domain.Session{Start: start}
			}
		}

		skipped += record.Normalize()
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].EntityID < records[j].EntityID })
	return records, skipped, nil
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, raw, loc)
		}
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
