package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"earthgazer/internal/services"
)

// Local serves file:// URLs from the local filesystem.
type Local struct{}

// NewLocal returns a filesystem-backed ObjectStore.
func NewLocal() *Local {
	return &Local{}
}

func localPath(raw string) (string, error) {
	loc, err := ParseURL(raw)
	if err != nil {
		return "", err
	}
	if loc.Scheme != SchemeFile {
		return "", services.Wrap(services.ErrValidation, "storage", "local", fmt.Sprintf("unsupported scheme %q", loc.Scheme), nil)
	}
	return filepath.FromSlash(loc.Key), nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]Object, error) {
	root, err := localPath(DirPrefix(prefix))
	if err != nil {
		return nil, err
	}
	root = filepath.Clean(root)
	var objects []Object
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p == root {
				return fs.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), partialSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			URL:     SchemeFile + "://" + filepath.ToSlash(p),
			Size:    info.Size(),
			Updated: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransfer, "storage", "list", prefix, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].URL < objects[j].URL })
	return objects, nil
}

func (l *Local) Exists(ctx context.Context, url string) (bool, error) {
	p, err := localPath(url)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrTransfer, "storage", "stat", url, err)
	}
	return !info.IsDir(), nil
}

func (l *Local) Copy(ctx context.Context, src, dst string) error {
	srcPath, err := localPath(src)
	if err != nil {
		return err
	}
	return l.Upload(ctx, srcPath, dst)
}

func (l *Local) Download(ctx context.Context, url, dest string) error {
	srcPath, err := localPath(url)
	if err != nil {
		return err
	}
	return copyFile(ctx, srcPath, dest)
}

func (l *Local) Upload(ctx context.Context, src, url string) error {
	destPath, err := localPath(url)
	if err != nil {
		return err
	}
	return copyFile(ctx, src, destPath)
}

const partialSuffix = ".partial"

// copyFile writes through a sibling temp file and renames it into place so
// readers never observe a partially written object.
func copyFile(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "storage", "open source", src, err)
		}
		return services.Wrap(services.ErrTransfer, "storage", "open source", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "create parent", dest, err)
	}
	tmp := dest + partialSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "create destination", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return services.Wrap(services.ErrTransfer, "storage", "write destination", dest, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrTransfer, "storage", "close destination", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrTransfer, "storage", "finalize destination", dest, err)
	}
	return nil
}
