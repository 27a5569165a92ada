package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"earthgazer/internal/services"
)

// Router dispatches object operations to a backend chosen by URL scheme.
type Router struct {
	mu         sync.RWMutex
	backends   map[string]ObjectStore
	scratchDir string
}

// NewRouter returns an empty router. Cross-scheme copies stage data in
// scratchDir, or the OS temp dir when empty.
func NewRouter(scratchDir string) *Router {
	return &Router{backends: make(map[string]ObjectStore), scratchDir: scratchDir}
}

// Register binds a backend to a URL scheme, replacing any previous binding.
func (r *Router) Register(scheme string, backend ObjectStore) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = backend
	return r
}

func (r *Router) backend(url string) (ObjectStore, string, error) {
	loc, err := ParseURL(url)
	if err != nil {
		return nil, "", err
	}
	r.mu.RLock()
	backend, ok := r.backends[loc.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, "", services.Wrap(services.ErrConfiguration, "storage", "route", fmt.Sprintf("no backend for scheme %q", loc.Scheme), nil)
	}
	return backend, loc.Scheme, nil
}

func (r *Router) List(ctx context.Context, prefix string) ([]Object, error) {
	backend, _, err := r.backend(prefix)
	if err != nil {
		return nil, err
	}
	return backend.List(ctx, prefix)
}

func (r *Router) Exists(ctx context.Context, url string) (bool, error) {
	backend, _, err := r.backend(url)
	if err != nil {
		return false, err
	}
	return backend.Exists(ctx, url)
}

func (r *Router) Copy(ctx context.Context, src, dst string) error {
	srcBackend, srcScheme, err := r.backend(src)
	if err != nil {
		return err
	}
	dstBackend, dstScheme, err := r.backend(dst)
	if err != nil {
		return err
	}
	if srcScheme == dstScheme {
		return srcBackend.Copy(ctx, src, dst)
	}

	if r.scratchDir != "" {
		if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
			return services.Wrap(services.ErrTransfer, "storage", "scratch", r.scratchDir, err)
		}
	}
	tmp, err := os.MkdirTemp(r.scratchDir, "copy-*")
	if err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "scratch", "create staging dir", err)
	}
	defer os.RemoveAll(tmp)

	staged := filepath.Join(tmp, Base(src))
	if err := srcBackend.Download(ctx, src, staged); err != nil {
		return err
	}
	return dstBackend.Upload(ctx, staged, dst)
}

func (r *Router) Download(ctx context.Context, url, localPath string) error {
	backend, _, err := r.backend(url)
	if err != nil {
		return err
	}
	return backend.Download(ctx, url, localPath)
}

func (r *Router) Upload(ctx context.Context, localPath, url string) error {
	backend, _, err := r.backend(url)
	if err != nil {
		return err
	}
	return backend.Upload(ctx, localPath, url)
}
