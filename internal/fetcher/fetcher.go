// Package fetcher stages remote source documents (FTP drop boxes, HTTP links)
// as local files for text acquisition.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/resilience"
)

// Fetcher downloads one remote document.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Options configures remote downloads.
type Options struct {
	Timeout time.Duration
	Retry   resilience.RetryPolicy
}

// Stager resolves sources to local paths. Local paths pass through; ftp://
// and http(s):// URLs are downloaded into Dir.
type Stager struct {
	Dir      string
	fetchers map[string]Fetcher
	retry    resilience.RetryPolicy
}

// NewStager creates a Stager writing into dir.
func NewStager(dir string, opts Options) *Stager {
	ftpf := NewFTPFetcher(FTPOptions{Timeout: opts.Timeout})
	httpf := NewHTTPFetcher(HTTPOptions{Timeout: opts.Timeout})
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("fetch")
	}
	return &Stager{
		Dir:      dir,
		fetchers: map[string]Fetcher{"ftp": ftpf, "http": httpf, "https": httpf},
		retry:    opts.Retry,
	}
}

// IsRemote reports whether src is a URL this package can download.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "ftp", "http", "https":
		return u.Host != ""
	}
	return false
}

// Stage returns a local path for src, downloading it when remote.
func (s *Stager) Stage(ctx context.Context, src string) (string, error) {
	if !IsRemote(src) {
		if _, err := os.Stat(src); err != nil {
			return "", eris.Wrapf(err, "fetcher: stat %s", src)
		}
		return src, nil
	}
	u, _ := url.Parse(src)
	f, ok := s.fetchers[u.Scheme]
	if !ok {
		return "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", eris.Errorf("fetcher: no file name in %s", redact(u))
	}
	dst := filepath.Join(s.Dir, name)

	n, err := resilience.Retry(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return downloadToFile(ctx, f, src, dst)
	})
	if err != nil {
		return "", err
	}
	zap.L().Info("fetcher: staged document",
		zap.String("source", redact(u)),
		zap.String("path", dst),
		zap.Int64("bytes", n),
	)
	return dst, nil
}

func downloadToFile(ctx context.Context, f Fetcher, rawURL, dst string) (int64, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	file, err := os.Create(dst)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, resilience.Transient(eris.Wrap(err, "fetcher: write file"), 0)
	}
	return n, nil
}

// redact drops credentials from u for logging.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	return strings.TrimSuffix(c.String(), "?")
}
