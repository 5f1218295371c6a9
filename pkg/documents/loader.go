package documents

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/docflow/edms/pkg/cache"
	"github.com/docflow/edms/pkg/lifecycle"
)

// DefaultMaxContentBytes bounds how much of a file FSLoader reads for a diff.
const DefaultMaxContentBytes = 4 << 20

// FSLoader reads file content by key from a filesystem, typically os.DirFS
// over the upload directory.
type FSLoader struct {
	FS       fs.FS
	MaxBytes int64
}

// Load returns the whole file as text. Files larger than MaxBytes are
// refused rather than truncated so the diff never lies about content.
func (l FSLoader) Load(ctx context.Context, f lifecycle.FileRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !fs.ValidPath(f.Key) {
		return "", fmt.Errorf("invalid file key %q", f.Key)
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxContentBytes
	}

	file, err := l.FS.Open(f.Key)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Key, err)
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Key, err)
	}
	if int64(len(body)) > limit {
		return "", fmt.Errorf("%s exceeds the %s content diff limit", f.Key, humanize.IBytes(uint64(limit)))
	}
	return string(body), nil
}

// CachingLoader memoizes successful loads. Uploaded files are never
// rewritten in place, so key and size identify the content.
type CachingLoader struct {
	Inner ContentLoader
	Cache *cache.LRU[string]
}

// NewCachingLoader wraps inner with a cache of maxEntries texts.
func NewCachingLoader(inner ContentLoader, maxEntries int, ttl time.Duration) CachingLoader {
	return CachingLoader{Inner: inner, Cache: cache.NewLRU[string](maxEntries, ttl)}
}

func (l CachingLoader) Load(ctx context.Context, f lifecycle.FileRef) (string, error) {
	key := f.Key + "#" + strconv.FormatInt(f.Size, 10)
	if body, ok := l.Cache.Get(key); ok {
		return body, nil
	}
	body, err := l.Inner.Load(ctx, f)
	if err != nil {
		return "", err
	}
	l.Cache.Set(key, body)
	return body, nil
}
