package storage

import (
	"context"

	"earthgazer/internal/config"
)

// Client is the configured production object store.
type Client struct {
	*Limited
	gcs *GCS
}

// Open builds the rate-limited router over Cloud Storage and the local
// filesystem.
func Open(ctx context.Context, cfg *config.Config) (*Client, error) {
	gcsStore, err := NewGCS(ctx, cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}
	router := NewRouter(cfg.Paths.ScratchDir).
		Register(SchemeGCS, gcsStore).
		Register(SchemeFile, NewLocal())
	return &Client{
		Limited: NewLimited(router, cfg.Storage.RequestsPerSecond, cfg.Storage.Burst),
		gcs:     gcsStore,
	}, nil
}

// Close releases the Cloud Storage client.
func (c *Client) Close() error {
	if c == nil || c.gcs == nil {
		return nil
	}
	return c.gcs.Close()
}
