package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"earthgazer/internal/services"
)

// GCS serves gs:// URLs from Google Cloud Storage.
type GCS struct {
	client *gcs.Client
}

// NewGCS creates a Cloud Storage client. An empty credentials file falls back
// to application default credentials.
func NewGCS(ctx context.Context, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "gcs client", "create storage client", err)
	}
	return &GCS{client: client}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) handle(raw string) (*gcs.ObjectHandle, Location, error) {
	loc, err := ParseURL(raw)
	if err != nil {
		return nil, loc, err
	}
	if loc.Scheme != SchemeGCS {
		return nil, loc, services.Wrap(services.ErrValidation, "storage", "gcs", fmt.Sprintf("unsupported scheme %q", loc.Scheme), nil)
	}
	return g.client.Bucket(loc.Bucket).Object(loc.Key), loc, nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]Object, error) {
	loc, err := ParseURL(DirPrefix(prefix))
	if err != nil {
		return nil, err
	}
	it := g.client.Bucket(loc.Bucket).Objects(ctx, &gcs.Query{Prefix: loc.Key})
	var objects []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCS("list", prefix, err)
		}
		objects = append(objects, Object{
			URL:     Location{Scheme: SchemeGCS, Bucket: attrs.Bucket, Key: attrs.Name}.String(),
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	return objects, nil
}

func (g *GCS) Exists(ctx context.Context, url string) (bool, error) {
	obj, _, err := g.handle(url)
	if err != nil {
		return false, err
	}
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, classifyGCS("stat", url, err)
	}
	return true, nil
}

func (g *GCS) Copy(ctx context.Context, src, dst string) error {
	srcObj, _, err := g.handle(src)
	if err != nil {
		return err
	}
	dstObj, _, err := g.handle(dst)
	if err != nil {
		return err
	}
	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		return classifyGCS("copy", src, err)
	}
	return nil
}

func (g *GCS) Download(ctx context.Context, url, localPath string) error {
	obj, _, err := g.handle(url)
	if err != nil {
		return err
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return classifyGCS("open", url, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "create parent", localPath, err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "create file", localPath, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(localPath)
		return classifyGCS("download", url, err)
	}
	return out.Close()
}

func (g *GCS) Upload(ctx context.Context, localPath, url string) error {
	obj, _, err := g.handle(url)
	if err != nil {
		return err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrTransfer, "storage", "open file", localPath, err)
	}
	defer file.Close()

	err = writeObject(ctx, func(writeCtx context.Context) io.WriteCloser {
		return obj.NewWriter(writeCtx)
	}, file)
	if err != nil {
		return classifyGCS("upload", url, err)
	}
	return nil
}

// writeObject streams src into a writer opened by open. A failed copy cancels
// the writer's context before closing it, so the partial object is discarded
// instead of committed.
func writeObject(ctx context.Context, open func(context.Context) io.WriteCloser, src io.Reader) error {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := open(writeCtx)
	if _, err := io.Copy(writer, src); err != nil {
		cancel()
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// classifyGCS maps provider failures onto the pipeline's error markers.
func classifyGCS(op, target string, err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return services.Wrap(services.ErrNotFound, "storage", op, target, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "storage", op, target, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "storage", op, target, err)
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "storage", op, target, err)
		}
	}
	return services.Wrap(services.ErrTransfer, "storage", op, target, err)
}
