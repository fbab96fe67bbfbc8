package secrets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bnema/presence-tracker/internal/ports"
)

// Chain tries the primary store and falls back to the secondary one when the
// primary fails for any reason other than cancellation.
type Chain struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
}

var _ ports.SecretStore = (*Chain)(nil)

func NewChain(primary, fallback ports.SecretStore) (*Chain, error) {
	if primary == nil || fallback == nil {
		return nil, errors.New("secret chain needs a primary and a fallback store")
	}
	return &Chain{primary: primary, fallback: fallback}, nil
}

const (
	BackendAuto = "auto"
	BackendPass = "pass"
	BackendFile = "file"
)

// New builds the store for backend. Auto prefers pass and falls back to files
// under dataDir/secrets.
func New(backend, dataDir string) (ports.SecretStore, error) {
	files := NewFileStore(filepath.Join(dataDir, FileStoreDir))
	switch backend {
	case BackendAuto, "":
		return &Chain{primary: NewPassStore(), fallback: files}, nil
	case BackendPass:
		return NewPassStore(), nil
	case BackendFile:
		return files, nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend %q", backend)
	}
}

func (c *Chain) Put(ctx context.Context, key string, value string) error {
	err := c.primary.Put(ctx, key, value)
	if err == nil || cancelled(err) {
		return err
	}
	if fallbackErr := c.fallback.Put(ctx, key, value); fallbackErr != nil {
		return fmt.Errorf("primary store: %w; fallback store: %w", err, fallbackErr)
	}
	return nil
}

func (c *Chain) Get(ctx context.Context, key string) (string, error) {
	value, err := c.primary.Get(ctx, key)
	if err == nil || cancelled(err) {
		return value, err
	}
	value, fallbackErr := c.fallback.Get(ctx, key)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary store: %w; fallback store: %w", err, fallbackErr)
	}
	return value, nil
}

// Delete removes key from both stores. A missing pass binary is not an
// error.
func (c *Chain) Delete(ctx context.Context, key string) error {
	err := c.primary.Delete(ctx, key)
	if cancelled(err) {
		return err
	}
	if fallbackErr := c.fallback.Delete(ctx, key); fallbackErr != nil {
		return errors.Join(err, fallbackErr)
	}
	if errors.Is(err, ErrPassUnavailable) {
		return nil
	}
	return err
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
