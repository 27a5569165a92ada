package storage

import (
	"fmt"
	"path"
	"strings"

	"earthgazer/internal/services"
)

const (
	SchemeGCS  = "gs"
	SchemeFile = "file"
)

// Location is a parsed object URL.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURL splits an object URL into scheme, bucket and key. file:// URLs
// have no bucket; their key is the absolute filesystem path.
func ParseURL(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || scheme == "" {
		return Location{}, services.Wrap(services.ErrValidation, "storage", "parse url", fmt.Sprintf("%q has no scheme", raw), nil)
	}
	scheme = strings.ToLower(scheme)
	switch scheme {
	case SchemeFile:
		if !strings.HasPrefix(rest, "/") {
			return Location{}, services.Wrap(services.ErrValidation, "storage", "parse url", fmt.Sprintf("%q must be an absolute path", raw), nil)
		}
		return Location{Scheme: scheme, Key: rest}, nil
	default:
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, services.Wrap(services.ErrValidation, "storage", "parse url", fmt.Sprintf("%q has no bucket", raw), nil)
		}
		return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
	}
}

// String reassembles the URL.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return SchemeFile + "://" + l.Key
	}
	if l.Key == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Join appends slash-separated elements to an object URL.
func Join(base string, elem ...string) string {
	base = strings.TrimRight(base, "/")
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return base
	}
	return base + "/" + path.Join(parts...)
}

// Base returns the final element of an object URL.
func Base(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// DirPrefix returns raw with exactly one trailing slash so listings do not
// pick up sibling objects sharing a name prefix.
func DirPrefix(raw string) string {
	return strings.TrimRight(raw, "/") + "/"
}
