package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"earthgazer/internal/services"
	"earthgazer/internal/storage"
)

// MemoryStore is an in-memory storage.ObjectStore keyed by full URL. It counts
// calls so tests can assert idempotence.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	copies   int
	uploads  int
	failCopy map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), failCopy: make(map[string]int)}
}

// Put seeds an object.
func (m *MemoryStore) Put(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = append([]byte(nil), data...)
}

// Get returns a stored object.
func (m *MemoryStore) Get(url string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[url]
	return data, ok
}

// Delete removes an object.
func (m *MemoryStore) Delete(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
}

// FailCopies makes the next n copies whose source is src fail transiently.
func (m *MemoryStore) FailCopies(src string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCopy[src] = n
}

// CopyCalls reports how many copies completed.
func (m *MemoryStore) CopyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies
}

// UploadCalls reports how many uploads completed.
func (m *MemoryStore) UploadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// URLs lists every stored object URL below prefix, sorted.
func (m *MemoryStore) URLs(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var urls []string
	for url := range m.objects {
		if strings.HasPrefix(url, prefix) {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = storage.DirPrefix(prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	var objects []storage.Object
	for url, data := range m.objects {
		if strings.HasPrefix(url, prefix) {
			objects = append(objects, storage.Object{URL: url, Size: int64(len(data))})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].URL < objects[j].URL })
	return objects, nil
}

func (m *MemoryStore) Exists(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok, nil
}

func (m *MemoryStore) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if remaining := m.failCopy[src]; remaining > 0 {
		m.failCopy[src] = remaining - 1
		return services.Wrap(services.ErrTransient, "storage", "copy", src, fmt.Errorf("injected failure"))
	}
	data, ok := m.objects[src]
	if !ok {
		return services.Wrap(services.ErrNotFound, "storage", "copy", src, nil)
	}
	m.objects[dst] = append([]byte(nil), data...)
	m.copies++
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, url, localPath string) error {
	m.mu.Lock()
	data, ok := m.objects[url]
	m.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "storage", "download", url, nil)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (m *MemoryStore) Upload(ctx context.Context, localPath, url string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "upload", localPath, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = data
	m.uploads++
	return nil
}
