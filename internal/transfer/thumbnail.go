package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jun/gophgallery/internal/adapter"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultThumbnailSize is used when the request carries no size.
	DefaultThumbnailSize = 400
	// MaxThumbnailSize bounds the longest edge a client may ask for.
	MaxThumbnailSize = 2048
	// maxThumbnailBytes caps a provider-rendered thumbnail.
	maxThumbnailBytes = 10 << 20
	// maxSourceBytes caps an original downloaded for local resizing.
	maxSourceBytes = 64 << 20
	thumbnailQuality = 85
)

// Thumbnail is an encoded preview image.
type Thumbnail struct {
	Data     []byte
	MIMEType string
}

// ResolveThumbnail returns a preview of fileID whose longest edge is about size pixels.
// It tries the provider's thumbnail with authorization, then the same URL without it,
// then downloads the original and resizes it locally to JPEG. Results are cached.
func (s *Service) ResolveThumbnail(ctx context.Context, accountID, fileID string, size int) (*Thumbnail, error) {
	if accountID == "" || fileID == "" {
		return nil, &ValidationError{Field: "file", Message: "account and file are required"}
	}
	if size == 0 {
		size = DefaultThumbnailSize
	}
	if size < 0 || size > MaxThumbnailSize {
		return nil, &ValidationError{Field: "size", Message: fmt.Sprintf("must be between 1 and %d", MaxThumbnailSize)}
	}

	key := fmt.Sprintf("thumb:%s:%s:%d", accountID, fileID, size)
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Printf("[Transfer] thumbnail cache read failed: %v", err)
	} else if ok {
		return &Thumbnail{Data: data, MIMEType: mimetype.Detect(data).String()}, nil
	}

	a, err := s.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return nil, err
	}
	thumb, err := s.resolve(ctx, a, fileID, size)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, thumb.Data, s.ThumbnailTTL); err != nil {
		log.Printf("[Transfer] thumbnail cache write failed: %v", err)
	}
	return thumb, nil
}

func (s *Service) resolve(ctx context.Context, a adapter.StorageAdapter, fileID string, size int) (*Thumbnail, error) {
	thumbURL, err := a.ThumbnailURL(ctx, fileID, size)
	if err != nil && isNotFound(err) {
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	}
	if err != nil {
		log.Printf("[Transfer] thumbnail url for %s failed: %v", fileID, err)
	}

	if thumbURL != "" {
		data, err := readThumbnail(a.OpenThumbnail(ctx, thumbURL))
		if err == nil {
			return &Thumbnail{Data: data, MIMEType: mimetype.Detect(data).String()}, nil
		}
		log.Printf("[Transfer] authorized thumbnail fetch for %s failed: %v", fileID, err)

		data, err = s.fetchPublic(ctx, thumbURL)
		if err == nil {
			return &Thumbnail{Data: data, MIMEType: mimetype.Detect(data).String()}, nil
		}
		log.Printf("[Transfer] public thumbnail fetch for %s failed: %v", fileID, err)
	}

	return s.resizeOriginal(ctx, a, fileID, size)
}

func (s *Service) fetchPublic(ctx context.Context, thumbURL string) ([]byte, error) {
	resp, err := s.public.Open(ctx, http.MethodGet, thumbURL, nil, false)
	if err != nil {
		return nil, err
	}
	return readThumbnail(resp.Body, nil)
}

func readThumbnail(rc io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxThumbnailBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty thumbnail")
	}
	if len(data) > maxThumbnailBytes {
		return nil, errors.New("thumbnail too large")
	}
	return data, nil
}

// resizeOriginal decodes the original locally. Videos and originals over maxSourceBytes
// are never downloaded.
func (s *Service) resizeOriginal(ctx context.Context, a adapter.StorageAdapter, fileID string, size int) (*Thumbnail, error) {
	f, err := a.GetFile(ctx, fileID)
	switch {
	case err != nil && isNotFound(err):
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	case err != nil:
		log.Printf("[Transfer] metadata for %s failed, resizing anyway: %v", fileID, err)
	case strings.HasPrefix(adapter.GuessMIME(f.Name, f.MIMEType), "video/"):
		return nil, fmt.Errorf("%w: %s is a video", ErrNoThumbnail, fileID)
	case f.Size > maxSourceBytes:
		return nil, fmt.Errorf("%w: %s is too large to resize", ErrNoThumbnail, fileID)
	}

	c, err := a.OpenContent(ctx, fileID, nil)
	if err != nil {
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	}
	defer c.Body.Close()

	src, _, err := image.Decode(io.LimitReader(c.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoThumbnail, fileID, err)
	}
	data, err := encodeThumbnail(src, size)
	if err != nil {
		return nil, err
	}
	return &Thumbnail{Data: data, MIMEType: "image/jpeg"}, nil
}

// fitSize scales (w, h) to fit inside a size×size box, never enlarging.
func fitSize(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

// encodeThumbnail resizes src to fit size and encodes it as JPEG on a white background.
func encodeThumbnail(src image.Image, size int) ([]byte, error) {
	b := src.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
