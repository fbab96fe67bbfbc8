// Package secrets stores the credentials presence needs to reach its source,
// preferring pass(1) and falling back to files under the data directory.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/presence-tracker/internal/ports"
)

// RefPrefix marks a config value that names a stored secret instead of
// holding it, as in source.token = "secret:source-token".
const RefPrefix = "secret:"

var ErrNotFound = errors.New("secret not found")

func IsRef(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), RefPrefix)
}

// Resolve returns value unchanged unless it is a secret reference, in which
// case the referenced secret is loaded from store.
func Resolve(ctx context.Context, store ports.SecretStore, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}

	key := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), RefPrefix))
	if key == "" {
		return "", fmt.Errorf("secret reference %q names no key", value)
	}
	secret, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s%s: %w", RefPrefix, key, err)
	}
	return secret, nil
}
