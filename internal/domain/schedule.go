package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Destination is an opaque delivery target, written as a URL.
type Destination string

func (d Destination) Validate() error {
	raw := strings.TrimSpace(string(d))
	if raw == "" {
		return ErrNoDestination
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	switch parsed.Scheme {
	case "file":
		if parsed.Path == "" {
			return fmt.Errorf("%w: file destination needs a path", ErrInvalidDestination)
		}
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("%w: webhook destination needs a host", ErrInvalidDestination)
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDestination, parsed.Scheme)
	}
	return nil
}

type ReportMode string

const (
	ReportModeSinceLast ReportMode = "since_last"
	ReportModeAllTime   ReportMode = "all_time"
)

func (m ReportMode) Valid() bool {
	switch m {
	case ReportModeSinceLast, ReportModeAllTime:
		return true
	default:
		return false
	}
}

// ReportSchedule is the process-wide weekly report state.
type ReportSchedule struct {
	Enabled      bool
	Destination  Destination
	LastReportAt time.Time
}
