package transfer

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/jun/gophgallery/internal/adapter"
)

// Stream is the result of StreamRange: a status, its headers and the body to send.
// The caller must close Body.
type Stream struct {
	Status        int
	Body          io.ReadCloser
	MIMEType      string
	ContentLength int64
	ContentRange  string
	Filename      string
}

// Headers returns the response headers for the stream.
func (s *Stream) Headers() map[string]string {
	h := map[string]string{
		"Content-Type":  s.MIMEType,
		"Accept-Ranges": "bytes",
	}
	if s.ContentLength >= 0 {
		h["Content-Length"] = strconv.FormatInt(s.ContentLength, 10)
	}
	if s.ContentRange != "" {
		h["Content-Range"] = s.ContentRange
	}
	return h
}

// ParseRange interprets a single-range "bytes=" header against a file of size bytes.
// It returns nil for an absent, malformed or multi-range header, which means the whole
// file is served. A syntactically valid range that selects nothing yields a *RangeError.
func ParseRange(header string, size int64) (*adapter.ByteRange, error) {
	header = strings.TrimSpace(header)
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") || size < 0 {
		return nil, nil
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// Suffix form: the final n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 || size == 0 {
			return nil, &RangeError{Size: size}
		}
		if n > size {
			n = size
		}
		return &adapter.ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return nil, nil
		}
		if end >= size {
			end = size - 1
		}
	}
	if start >= size {
		return nil, &RangeError{Size: size}
	}
	return &adapter.ByteRange{Start: start, End: end}, nil
}

// StreamRange serves fileID honoring rangeHeader. With a satisfiable range the result is
// a 206 with Content-Range, cut to at most MaxStreamChunk bytes; otherwise the whole
// file is returned with status 200, provided it fits in MaxFileSize.
// Providers that ignore the forwarded range are trimmed locally.
func (s *Service) StreamRange(ctx context.Context, accountID, fileID, rangeHeader string) (*Stream, error) {
	if accountID == "" || fileID == "" {
		return nil, &ValidationError{Field: "file", Message: "account and file are required"}
	}
	a, err := s.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return nil, err
	}
	f, err := a.GetFile(ctx, fileID)
	if err != nil {
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	}

	var rng *adapter.ByteRange
	if f.Size > 0 {
		if rng, err = ParseRange(rangeHeader, f.Size); err != nil {
			return nil, err
		}
	}
	if rng == nil && f.Size > s.MaxFileSize {
		return nil, &SizeError{Limit: s.MaxFileSize}
	}
	if rng != nil && s.MaxStreamChunk > 0 && rng.End-rng.Start+1 > s.MaxStreamChunk {
		rng.End = rng.Start + s.MaxStreamChunk - 1
	}

	c, err := a.OpenContent(ctx, fileID, rng)
	if err != nil {
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	}
	out := &Stream{
		Status:        http.StatusOK,
		Body:          c.Body,
		MIMEType:      DetectMIME(f.Name, f.MIMEType, nil),
		ContentLength: f.Size,
		Filename:      f.Name,
	}
	if f.Size <= 0 {
		out.ContentLength = c.Length
	}
	if rng == nil {
		out.Body = capBody(c.Body, s.MaxFileSize)
		return out, nil
	}

	length := rng.End - rng.Start + 1
	if !c.Partial {
		log.Printf("[Transfer] %s ignored range %s for %s, trimming locally", a.Provider(), rng.Header(), fileID)
		if _, err := io.CopyN(io.Discard, c.Body, rng.Start); err != nil {
			c.Body.Close()
			return nil, adapter.FetchError(a.Provider(), fileID, fmt.Errorf("skip to offset %d: %w", rng.Start, err))
		}
	}
	out.Body = readCloser{Reader: io.LimitReader(c.Body, length), Closer: c.Body}
	out.Status = http.StatusPartialContent
	out.ContentLength = length
	out.ContentRange = fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, f.Size)
	return out, nil
}
