package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/credentials"
)

// DefaultCredentialKey is where the shared service credential is kept
const DefaultCredentialKey = "fern:credential"

// CredentialStore shares the service credential between instances. It
// implements credentials.Store.
type CredentialStore struct {
	client *Client
	key    string
}

// NewCredentialStore creates a credential store under key
func NewCredentialStore(client *Client, key string) *CredentialStore {
	if key == "" {
		key = DefaultCredentialKey
	}
	return &CredentialStore{client: client, key: key}
}

// Get returns the shared credential, or credentials.ErrNotFound
func (s *CredentialStore) Get(ctx context.Context) (*credentials.Credential, error) {
	raw, found, err := s.client.Lookup(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if !found {
		return nil, credentials.ErrNotFound
	}

	var cred credentials.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Warn("Discarding unreadable shared credential")
		return nil, credentials.ErrNotFound
	}
	return &cred, nil
}

// Set stores the credential for ttl. A zero ttl keeps it until replaced.
func (s *CredentialStore) Set(ctx context.Context, cred *credentials.Credential, ttl time.Duration) error {
	if cred == nil {
		return s.client.Delete(ctx, s.key)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := s.client.Store(ctx, s.key, data, ttl); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
