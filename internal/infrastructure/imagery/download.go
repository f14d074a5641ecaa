package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
)

var (
	// ErrTooLarge is returned when a download exceeds the byte ceiling.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrNotImage is returned when a resource is declared or detected as non-image.
	ErrNotImage = errors.New("resource is not an image")
)

// Fetcher is the subset of the retrying HTTP client the resolver needs.
type Fetcher interface {
	Get(ctx context.Context, target string) (*http.Response, error)
	Head(ctx context.Context, target string) (*http.Response, error)
}

type staged struct {
	path        string
	contentType string
	size        int64
}

// probe returns the declared media type, or "" when the HEAD request fails.
func (r *Resolver) probe(ctx context.Context, target string) (string, int64) {
	resp, err := r.client.Head(ctx, target)
	if err != nil {
		r.debug("image probe failed", "url", target, "error", err)
		return "", -1
	}
	return mediaType(resp.Header.Get("Content-Type")), resp.ContentLength
}

// download streams target into a temp file, never holding more than maxBytes on disk.
func (r *Resolver) download(ctx context.Context, target string) (*staged, error) {
	resp, err := r.client.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if declared(contentType) && !isImageType(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}

	tmp, err := os.CreateTemp(r.tempDir, "newsdigest-img-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	out := &staged{path: tmp.Name(), contentType: contentType}

	n, copyErr := io.Copy(tmp, io.LimitReader(resp.Body, r.maxBytes+1))
	closeErr := tmp.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(out.path)
		return nil, fmt.Errorf("read image body: %w", copyErr)
	case n > r.maxBytes:
		_ = os.Remove(out.path)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, r.maxBytes)
	case closeErr != nil:
		_ = os.Remove(out.path)
		return nil, fmt.Errorf("close staging file: %w", closeErr)
	}
	out.size = n
	return out, nil
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return strings.ToLower(mt)
}

// declared treats generic binary types as unknown; CDNs send them for images too.
func declared(contentType string) bool {
	switch contentType {
	case "", "application/octet-stream", "binary/octet-stream":
		return false
	default:
		return true
	}
}

func isImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
