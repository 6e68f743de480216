package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/midodimori/mcp-test-kits/storage"
)

// SaveClient stores a registered client without a TTL. Registration is
// open, so the key count grows with every POST /oauth/register until the
// keyspace is flushed.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	const op = "save_client"
	ctx, span := s.startStorageSpan(ctx, op)
	defer span.End()
	defer s.recordStorageOperation(ctx, span, op, &err, time.Now())

	if err = storage.ValidateClient(client); err != nil {
		return err
	}
	if err = s.setJSON(ctx, s.clientKey(client.ClientID), client, 0); err != nil {
		return fmt.Errorf("failed to save client %s: %w", client.ClientID, err)
	}
	s.logger.Debug("Registered client stored", "client_id", client.ClientID, "redirect_uris", len(client.RedirectURIs))
	return nil
}

// GetClient returns the client registered as clientID, or
// storage.ErrClientNotFound.
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	const op = "get_client"
	ctx, span := s.startStorageSpan(ctx, op)
	defer span.End()
	defer s.recordStorageOperation(ctx, span, op, &err, time.Now())

	client, err = getJSON[storage.Client](ctx, s, s.clientKey(clientID), storage.ErrClientNotFound)
	return client, err
}
