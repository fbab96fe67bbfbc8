package file

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

var _ ports.Deliverer = (*Deliverer)(nil)

// Deliverer writes payloads into the directory named by a file:// destination.
type Deliverer struct {
	mu      sync.Mutex
	newName func() string
}

func New() *Deliverer {
	return &Deliverer{newName: func() string { return uuid.NewString() }}
}

func (d *Deliverer) Deliver(ctx context.Context, dest domain.Destination, payload domain.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := DirFromDestination(dest)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create delivery directory: %w", err)
	}

	path := filepath.Join(dir, d.newName()+"-"+sanitizeFilename(payload.Filename))
	if err := atomic.WriteFile(path, bytes.NewReader(payload.Body)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(path, fileMode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// DirFromDestination extracts the target directory of a file:// destination.
func DirFromDestination(dest domain.Destination) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}
	parsed, err := url.Parse(strings.TrimSpace(string(dest)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
	}
	if parsed.Scheme != "file" {
		return "", fmt.Errorf("%w: file deliverer cannot handle %q", domain.ErrInvalidDestination, parsed.Scheme)
	}
	return filepath.Clean(filepath.FromSlash(parsed.Path)), nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "payload"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
}
