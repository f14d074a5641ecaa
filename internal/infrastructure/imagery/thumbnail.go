package imagery

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"golang.org/x/image/draw"
)

const thumbPrefix = "thumb_"

// thumbnailSize fits w x h inside edge x edge without upscaling.
func thumbnailSize(w, h, edge int) (int, int) {
	if w <= edge && h <= edge {
		return w, h
	}
	if w >= h {
		th := h * edge / w
		if th < 1 {
			th = 1
		}
		return edge, th
	}
	tw := w * edge / h
	if tw < 1 {
		tw = 1
	}
	return tw, edge
}

// renderThumbnail scales src and encodes it; webp has no encoder, so it becomes png.
func renderThumbnail(src image.Image, name string, edge int) (string, []byte, error) {
	bounds := src.Bounds()
	tw, th := thumbnailSize(bounds.Dx(), bounds.Dy(), edge)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	thumbName := thumbPrefix + name
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	case ".gif":
		err = gif.Encode(&buf, dst, nil)
	case ".png":
		err = png.Encode(&buf, dst)
	default:
		thumbName = thumbPrefix + strings.TrimSuffix(name, path.Ext(name)) + ".png"
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return "", nil, err
	}
	return thumbName, buf.Bytes(), nil
}
