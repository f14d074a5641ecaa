package imagery

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const maxPixels = 50_000_000

var knownExtensions = map[string]string{
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".png":  ".png",
	".gif":  ".gif",
	".webp": ".webp",
}

// decodeStaged checks that the staged bytes are a real, decodable image.
func decodeStaged(file string) (image.Image, string, string, error) {
	detected, err := mimetype.DetectFile(file)
	if err != nil {
		return nil, "", "", fmt.Errorf("sniff image: %w", err)
	}
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, "", "", fmt.Errorf("%w: detected %s", ErrNotImage, detected.String())
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, "", "", err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, "", "", fmt.Errorf("%w: unsupported dimensions %dx%d", ErrNotImage, cfg.Width, cfg.Height)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, "", "", err
	}
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return img, format, detected.String(), nil
}

// extensionFor picks the URL path extension, then the content type's, then .jpg.
func extensionFor(imageURL, contentType string) string {
	if u, err := url.Parse(imageURL); err == nil {
		if ext, ok := knownExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
			return ext
		}
	}
	if contentType != "" {
		if m := mimetype.Lookup(contentType); m != nil {
			if ext, ok := knownExtensions[m.Extension()]; ok {
				return ext
			}
		}
	}
	return ".jpg"
}
