package imagery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const maxPageBytes = 4 << 20

// Options bounds the resolver.
type Options struct {
	MaxBytes      int64
	ThumbnailEdge int
	TempDir       string
	Logger        *slog.Logger
	NewName       func() string
}

// Resolver finds an article's lead image and stores it plus a thumbnail.
type Resolver struct {
	client    Fetcher
	store     ports.BlobStore
	maxBytes  int64
	thumbEdge int
	tempDir   string
	logger    *slog.Logger
	newName   func() string
}

var _ ports.ImageResolver = (*Resolver)(nil)

// NewResolver wires the HTTP client and blob store; zero options use 5 MiB and 300px.
func NewResolver(client Fetcher, store ports.BlobStore, opts Options) *Resolver {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.ThumbnailEdge <= 0 {
		opts.ThumbnailEdge = 300
	}
	if opts.NewName == nil {
		opts.NewName = uuid.NewString
	}
	return &Resolver{
		client:    client,
		store:     store,
		maxBytes:  opts.MaxBytes,
		thumbEdge: opts.ThumbnailEdge,
		tempDir:   opts.TempDir,
		logger:    opts.Logger,
		newName:   opts.NewName,
	}
}

// Resolve never fails the caller: every problem becomes an absent or failed result.
func (r *Resolver) Resolve(ctx context.Context, articleURL, imageURL string) domain.ImageResult {
	result := r.resolve(ctx, articleURL, imageURL)
	switch result.Outcome {
	case domain.OutcomeOK:
		r.debug("image stored", "article", articleURL, "file", result.File, "thumbnail", result.Thumbnail)
	default:
		r.debug("image unavailable", "article", articleURL, "outcome", result.Outcome, "reason", result.Reason)
	}
	return result
}

func (r *Resolver) resolve(ctx context.Context, articleURL, imageURL string) domain.ImageResult {
	if r.client == nil || r.store == nil {
		return domain.ImageAbsent("image resolver is not configured")
	}

	ref, base := strings.TrimSpace(imageURL), articleURL
	if ref == "" {
		if strings.TrimSpace(articleURL) == "" {
			return domain.ImageAbsent("article has no link")
		}
		found, pageURL, err := r.findOnPage(ctx, articleURL)
		if err != nil {
			return domain.ImageFailed(err)
		}
		if found == "" {
			return domain.ImageAbsent("no image candidate on page")
		}
		ref, base = found, pageURL
	}

	target, err := resolveReference(base, ref)
	if err != nil {
		return domain.ImageFailed(err)
	}

	probedType, probedLen := r.probe(ctx, target)
	if declared(probedType) && !isImageType(probedType) {
		return domain.ImageFailed(fmt.Errorf("%w: %s", ErrNotImage, probedType))
	}
	if probedLen > r.maxBytes {
		return domain.ImageFailed(fmt.Errorf("%w: declared %d bytes", ErrTooLarge, probedLen))
	}

	file, err := r.download(ctx, target)
	if err != nil {
		return domain.ImageFailed(err)
	}
	defer os.Remove(file.path)

	img, _, detected, err := decodeStaged(file.path)
	if err != nil {
		return domain.ImageFailed(err)
	}

	contentType := file.contentType
	if !isImageType(contentType) {
		contentType = detected
	}
	name := r.newName() + extensionFor(target, contentType)

	if err := r.storeFile(ctx, name, file.path, contentType); err != nil {
		return domain.ImageFailed(err)
	}

	thumbName, thumbBytes, err := renderThumbnail(img, name, r.thumbEdge)
	if err != nil {
		r.warn("thumbnail render failed", "file", name, "error", err)
		return domain.ImageFound(name, "")
	}
	if err := r.store.Put(ctx, thumbName, bytes.NewReader(thumbBytes), ""); err != nil {
		r.warn("thumbnail store failed", "file", thumbName, "error", err)
		return domain.ImageFound(name, "")
	}
	return domain.ImageFound(name, thumbName)
}

func (r *Resolver) findOnPage(ctx context.Context, articleURL string) (string, string, error) {
	resp, err := r.client.Get(ctx, articleURL)
	if err != nil {
		return "", "", fmt.Errorf("fetch article page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", fmt.Errorf("parse article page: %w", err)
	}

	pageURL := articleURL
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL.String()
	}
	return locateImage(doc), pageURL, nil
}

func (r *Resolver) storeFile(ctx context.Context, name, file, contentType string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("reopen staged image: %w", err)
	}
	defer f.Close()

	if err := r.store.Put(ctx, name, f, contentType); err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	return nil
}

func (r *Resolver) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Resolver) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
