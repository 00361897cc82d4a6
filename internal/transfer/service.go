// Package transfer serves file bytes out of connected accounts: single downloads,
// zip batches, ranged streams and thumbnails.
package transfer

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/transport"
	"github.com/jun/gophgallery/internal/cache"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultArchiveConcurrency caps parallel fetches while building an archive.
	DefaultArchiveConcurrency = 5
	// DefaultMaxArchiveFiles caps the number of files in one batch request.
	DefaultMaxArchiveFiles = 200
	// DefaultMaxFileSize caps the bytes buffered for one download, and for a whole archive.
	DefaultMaxFileSize = 512 << 20
	// DefaultMaxStreamChunk caps one ranged stream response. A base64 body of this size
	// stays under the Lambda response payload limit.
	DefaultMaxStreamChunk = 4 << 20
	// sniffLen is how much of a body is peeked for MIME detection.
	sniffLen = 3072
)

// Download is a file ready to be sent to a client. The caller must close Body.
type Download struct {
	Body     io.ReadCloser
	Filename string
	MIMEType string
	Size     int64 // -1 if unknown
}

// Service implements the transfer operations on top of a StorageProvider.
type Service struct {
	provider adapter.StorageProvider
	cache    cache.Cache
	public   *transport.Client

	ArchiveConcurrency int
	MaxArchiveFiles    int
	MaxFileSize        int64
	MaxStreamChunk     int64
	ThumbnailTTL       time.Duration
}

// NewService creates a transfer Service. A nil cache keeps thumbnails in process memory;
// httpClient is used for unauthenticated thumbnail fetches.
func NewService(provider adapter.StorageProvider, c cache.Cache, httpClient *http.Client) *Service {
	if c == nil {
		c = cache.NewMemoryCache(256)
	}
	return &Service{
		provider:           provider,
		cache:              c,
		public:             transport.New("Thumbnail", httpClient, nil),
		ArchiveConcurrency: DefaultArchiveConcurrency,
		MaxArchiveFiles:    DefaultMaxArchiveFiles,
		MaxFileSize:        DefaultMaxFileSize,
		MaxStreamChunk:     DefaultMaxStreamChunk,
		ThumbnailTTL:       24 * time.Hour,
	}
}

// DownloadFile opens one file for an attachment response. The body is passed through
// unmodified; only the MIME type is corrected. Files over MaxFileSize are refused, and a
// body that grows past it while being read fails with a *SizeError.
func (s *Service) DownloadFile(ctx context.Context, accountID, fileID string) (*Download, error) {
	if accountID == "" || fileID == "" {
		return nil, &ValidationError{Field: "file", Message: "account and file are required"}
	}
	a, err := s.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.download(ctx, a, fileID)
}

func (s *Service) download(ctx context.Context, a adapter.StorageAdapter, fileID string) (*Download, error) {
	f, err := a.GetFile(ctx, fileID)
	if err != nil {
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	}
	if f.Size > s.MaxFileSize {
		return nil, &SizeError{Limit: s.MaxFileSize}
	}
	c, err := a.OpenContent(ctx, fileID, nil)
	if err != nil {
		return nil, adapter.FetchError(a.Provider(), fileID, err)
	}

	br := bufio.NewReaderSize(capBody(c.Body, s.MaxFileSize), sniffLen)
	head, _ := br.Peek(sniffLen)
	reported := f.MIMEType
	if reported == "" {
		reported = c.MIMEType
	}
	size := f.Size
	if c.Length >= 0 {
		size = c.Length
	}
	return &Download{
		Body:     readCloser{Reader: br, Closer: c.Body},
		Filename: f.Name,
		MIMEType: DetectMIME(f.Name, reported, head),
		Size:     size,
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// capReader fails with a *SizeError once more than limit bytes are available.
type capReader struct {
	r     io.Reader
	left  int64
	limit int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, &SizeError{Limit: c.limit}
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}

// capBody bounds rc to limit bytes; the original Closer is kept.
func capBody(rc io.ReadCloser, limit int64) io.ReadCloser {
	return readCloser{Reader: &capReader{r: rc, left: limit, limit: limit}, Closer: rc}
}

// byteBudget is the number of bytes an archive may still buffer.
type byteBudget struct {
	left atomic.Int64
}

func newByteBudget(n int64) *byteBudget {
	b := &byteBudget{}
	b.left.Store(n)
	return b
}

// take reserves n bytes, reporting false (and reserving nothing) when they do not fit.
func (b *byteBudget) take(n int64) bool {
	if b.left.Add(-n) < 0 {
		b.left.Add(n)
		return false
	}
	return true
}

// DownloadArchive bundles fileIDs into a store-only zip. A file that cannot be fetched,
// or that no longer fits in the MaxFileSize archive budget, becomes a "<name>.error.txt"
// entry instead of failing the batch. A single id is returned as a plain download.
func (s *Service) DownloadArchive(ctx context.Context, accountID string, fileIDs []string, name string) (*Download, error) {
	ids := uniqueIDs(fileIDs)
	if accountID == "" || len(ids) == 0 {
		return nil, &ValidationError{Field: "files", Message: "account and at least one file are required"}
	}
	if len(ids) > s.MaxArchiveFiles {
		return nil, &ValidationError{Field: "files", Message: fmt.Sprintf("at most %d files per archive", s.MaxArchiveFiles)}
	}

	a, err := s.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 1 {
		return s.download(ctx, a, ids[0])
	}

	entries := make([]archiveEntry, len(ids))
	budget := newByteBudget(s.MaxFileSize)
	var g errgroup.Group
	g.SetLimit(s.ArchiveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			entries[i] = s.fetchEntry(ctx, a, id, budget)
			return nil
		})
	}
	g.Wait()

	var buf bytes.Buffer
	if err := writeArchive(&buf, entries); err != nil {
		return nil, fmt.Errorf("failed to build archive: %w", err)
	}
	failed := 0
	for _, e := range entries {
		if e.err != nil {
			failed++
		}
	}
	log.Printf("[Transfer] archive for account %s: %d files, %d failed, %d bytes", accountID, len(entries), failed, buf.Len())

	return &Download{
		Body:     io.NopCloser(&buf),
		Filename: archiveName(name),
		MIMEType: "application/zip",
		Size:     int64(buf.Len()),
	}, nil
}

type archiveEntry struct {
	name     string
	data     []byte
	modified time.Time
	err      error
}

func (s *Service) fetchEntry(ctx context.Context, a adapter.StorageAdapter, fileID string, budget *byteBudget) archiveEntry {
	e := archiveEntry{name: path.Base(fileID)}
	f, err := a.GetFile(ctx, fileID)
	if err != nil {
		e.err = adapter.FetchError(a.Provider(), fileID, err)
		log.Printf("[Transfer] archive entry %s failed: %v", fileID, e.err)
		return e
	}
	e.name, e.modified = f.Name, f.ModifiedTime
	if !budget.take(f.Size) {
		e.err = &SizeError{Limit: s.MaxFileSize}
		log.Printf("[Transfer] archive entry %s skipped: %v", fileID, e.err)
		return e
	}

	c, err := a.OpenContent(ctx, fileID, nil)
	if err != nil {
		e.err = adapter.FetchError(a.Provider(), fileID, err)
		log.Printf("[Transfer] archive entry %s failed: %v", fileID, e.err)
		return e
	}
	defer c.Body.Close()
	data, err := io.ReadAll(capBody(c.Body, s.MaxFileSize))
	switch {
	case errors.Is(err, ErrTooLarge):
		e.err = err
	case err != nil:
		e.err = adapter.FetchError(a.Provider(), fileID, err)
	case int64(len(data)) > f.Size && !budget.take(int64(len(data))-f.Size):
		e.err = &SizeError{Limit: s.MaxFileSize}
	default:
		e.data = data
	}
	if e.err != nil {
		log.Printf("[Transfer] archive entry %s failed: %v", fileID, e.err)
	}
	return e
}

func writeArchive(w io.Writer, entries []archiveEntry) error {
	zw := zip.NewWriter(w)
	used := make(map[string]bool)
	for _, e := range entries {
		name := e.name
		data := e.data
		if e.err != nil {
			name += ".error.txt"
			data = []byte(fmt.Sprintf("Could not download %s: %v\n", e.name, e.err))
		}
		hdr := &zip.FileHeader{
			Name:     uniqueName(used, entryName(name)),
			Method:   zip.Store,
			Modified: e.modified,
		}
		if hdr.Modified.IsZero() {
			hdr.Modified = time.Now()
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// entryName keeps archive entries flat and free of path traversal.
func entryName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// uniqueName returns name, or "base (n).ext" with the first free n.
func uniqueName(used map[string]bool, name string) string {
	key := strings.ToLower(name)
	if !used[key] {
		used[key] = true
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if k := strings.ToLower(candidate); !used[k] {
			used[k] = true
			return candidate
		}
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// isNotFound reports whether err means the file does not exist at the provider.
func isNotFound(err error) bool {
	return errors.Is(err, adapter.ErrNotFound)
}
