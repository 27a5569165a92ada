package storage

import (
	"context"

	"golang.org/x/time/rate"

	"earthgazer/internal/services"
)

// Limited throttles calls to an ObjectStore with a shared token bucket.
type Limited struct {
	inner   ObjectStore
	limiter *rate.Limiter
}

// NewLimited wraps inner. A non-positive rate disables throttling.
func NewLimited(inner ObjectStore, requestsPerSecond float64, burst int) *Limited {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrTimeout, "storage", "rate limit", "waiting for request budget", err)
	}
	return nil
}

func (l *Limited) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.List(ctx, prefix)
}

func (l *Limited) Exists(ctx context.Context, url string) (bool, error) {
	if err := l.wait(ctx); err != nil {
		return false, err
	}
	return l.inner.Exists(ctx, url)
}

func (l *Limited) Copy(ctx context.Context, src, dst string) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.inner.Copy(ctx, src, dst)
}

func (l *Limited) Download(ctx context.Context, url, localPath string) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.inner.Download(ctx, url, localPath)
}

func (l *Limited) Upload(ctx context.Context, localPath, url string) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.inner.Upload(ctx, localPath, url)
}
