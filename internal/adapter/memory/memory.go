package memory

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
)

const rootID = "root"

const (
	maxDemoContentSize = 8 * 1024 * 1024 // 8MB
	maxDemoTitleLength = 255
)

type node struct {
	id        string
	parent    string
	name      string
	folder    bool
	mimeType  string
	content   []byte
	modified  time.Time
	width     int
	height    int
	thumbnail string
}

// MemoryAdapter implements adapter.StorageAdapter over an in-memory folder tree.
// It backs DEV_MODE accounts and lets tests inject listing and content failures.
type MemoryAdapter struct {
	provider model.Provider

	mu          sync.RWMutex
	nodes       map[string]*node
	thumbnails  map[string][]byte
	failList    map[string]error
	failContent map[string]error

	// MaxItems caps the number of stored nodes; 0 means unlimited.
	MaxItems int
	// IgnoreRange makes OpenContent answer every request with the whole object,
	// the way some providers do.
	IgnoreRange bool
	Quota       adapter.Quota
}

// NewMemoryAdapter creates an empty drive that reports itself as provider p.
func NewMemoryAdapter(p model.Provider) *MemoryAdapter {
	if p == "" {
		p = model.ProviderGoogle
	}
	return &MemoryAdapter{
		provider:    p,
		nodes:       map[string]*node{rootID: {id: rootID, name: "", folder: true}},
		thumbnails:  make(map[string][]byte),
		failList:    make(map[string]error),
		failContent: make(map[string]error),
		Quota:       adapter.Quota{Limit: 15 << 30},
	}
}

func target(parentID string) string {
	if parentID == "" || parentID == "/" {
		return rootID
	}
	return parentID
}

func (m *MemoryAdapter) add(parentID string, n *node) (string, error) {
	if len(n.name) > maxDemoTitleLength {
		return "", fmt.Errorf("name too long (max %d characters)", maxDemoTitleLength)
	}
	if len(n.content) > maxDemoContentSize {
		return "", fmt.Errorf("content too large (max %d bytes)", maxDemoContentSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MaxItems > 0 && len(m.nodes)-1 >= m.MaxItems {
		return "", fmt.Errorf("item limit reached for demo mode (max %d items)", m.MaxItems)
	}
	parent, ok := m.nodes[target(parentID)]
	if !ok || !parent.folder {
		return "", adapter.ErrNotFound
	}
	n.id = uuid.New().String()
	n.parent = parent.id
	n.modified = time.Now()
	m.nodes[n.id] = n
	m.Quota.Usage += int64(len(n.content))
	return n.id, nil
}

// AddFolder creates a folder under parentID and returns its id.
func (m *MemoryAdapter) AddFolder(parentID, name string) (string, error) {
	return m.add(parentID, &node{name: name, folder: true})
}

// AddFile creates a file under parentID. The MIME type is inferred from the name.
func (m *MemoryAdapter) AddFile(parentID, name string, content []byte) (string, error) {
	return m.add(parentID, &node{name: name, mimeType: adapter.GuessMIME(name, ""), content: content})
}

// SetThumbnail registers a native thumbnail URL for fileID; data is what OpenThumbnail
// serves for it. A nil data makes the URL fail when opened with authorization.
func (m *MemoryAdapter) SetThumbnail(fileID, url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[fileID]; ok {
		n.thumbnail = url
	}
	if data != nil {
		m.thumbnails[url] = data
	}
}

// SetDimensions records image or video dimensions for fileID.
func (m *MemoryAdapter) SetDimensions(fileID string, width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[fileID]; ok {
		n.width, n.height = width, height
	}
}

// FailListing makes listings of parentID return err.
func (m *MemoryAdapter) FailListing(parentID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failList[target(parentID)] = err
}

// FailContent makes content fetches of fileID return err.
func (m *MemoryAdapter) FailContent(fileID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failContent[fileID] = err
}

func (m *MemoryAdapter) Provider() model.Provider { return m.provider }

func (m *MemoryAdapter) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	return &adapter.AccountInfo{ID: "demo-" + string(m.provider), Email: "demo@example.com", DisplayName: "Demo Drive"}, nil
}

// children returns the nodes under parentID sorted by name, for stable listings.
func (m *MemoryAdapter) children(parentID string, folders bool) ([]*node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id := target(parentID)
	if err := m.failList[id]; err != nil {
		return nil, err
	}
	if p, ok := m.nodes[id]; !ok || !p.folder {
		return nil, adapter.ErrNotFound
	}
	var out []*node
	for _, n := range m.nodes {
		if n.parent == id && n.id != rootID && n.folder == folders {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func (m *MemoryAdapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	nodes, err := m.children(parentID, true)
	if err != nil {
		return nil, err
	}
	folders := []adapter.Folder{}
	for _, n := range nodes {
		folders = append(folders, adapter.Folder{ID: n.id, Name: n.name})
	}
	return folders, nil
}

func (m *MemoryAdapter) ListFiles(ctx context.Context, parentID string) ([]adapter.File, error) {
	nodes, err := m.children(parentID, false)
	if err != nil {
		return nil, err
	}
	files := []adapter.File{}
	for _, n := range nodes {
		files = append(files, toFile(n))
	}
	return files, nil
}

func toFile(n *node) adapter.File {
	return adapter.File{
		ID:           n.id,
		Name:         n.name,
		MIMEType:     n.mimeType,
		Size:         int64(len(n.content)),
		ModifiedTime: n.modified,
		Thumbnail:    n.thumbnail,
		Width:        n.width,
		Height:       n.height,
	}
}

func (m *MemoryAdapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[fileID]
	if !ok || n.folder {
		return nil, adapter.ErrNotFound
	}
	f := toFile(n)
	return &f, nil
}

// GetFileContent returns "": the memory drive has no URL-based access.
func (m *MemoryAdapter) GetFileContent(ctx context.Context, fileID string) (string, error) {
	return "", nil
}

func (m *MemoryAdapter) OpenContent(ctx context.Context, fileID string, rng *adapter.ByteRange) (*adapter.Content, error) {
	m.mu.RLock()
	n, ok := m.nodes[fileID]
	failErr := m.failContent[fileID]
	m.mu.RUnlock()
	if failErr != nil {
		return nil, adapter.FetchError(m.provider, fileID, failErr)
	}
	if !ok || n.folder {
		return nil, adapter.FetchError(m.provider, fileID, adapter.ErrNotFound)
	}

	data := n.content
	partial := true
	if rng != nil {
		if m.IgnoreRange {
			partial = false
		} else {
			end := rng.End
			if end < 0 || end >= int64(len(data)) {
				end = int64(len(data)) - 1
			}
			if rng.Start > end {
				data = nil
			} else {
				data = data[rng.Start : end+1]
			}
		}
	}
	return &adapter.Content{
		Body:     io.NopCloser(bytes.NewReader(data)),
		Length:   int64(len(data)),
		MIMEType: n.mimeType,
		Partial:  partial,
	}, nil
}

func (m *MemoryAdapter) ThumbnailURL(ctx context.Context, fileID string, size int) (string, error) {
	f, err := m.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return f.Thumbnail, nil
}

func (m *MemoryAdapter) OpenThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.thumbnails[thumbnailURL]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryAdapter) GetQuota(ctx context.Context) (*adapter.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.Quota
	return &q, nil
}

// Factory returns an adapter.Factory that gives every account its own drive,
// created and passed to seed on first use.
func Factory(seed func(*MemoryAdapter) error) adapter.Factory {
	var mu sync.Mutex
	drives := make(map[string]*MemoryAdapter)
	return func(ctx context.Context, cred *adapter.Credential) (adapter.StorageAdapter, error) {
		mu.Lock()
		defer mu.Unlock()
		if d, ok := drives[cred.AccountID]; ok {
			return d, nil
		}
		d := NewMemoryAdapter(cred.Provider)
		if seed != nil {
			if err := seed(d); err != nil {
				return nil, fmt.Errorf("failed to seed demo drive: %w", err)
			}
		}
		drives[cred.AccountID] = d
		return d, nil
	}
}

// SeedDemoGallery fills m with a small wedding gallery: two highlights at the root,
// a "Ceremonia" moment with web and raw variants, and a root-level web/ pool.
func SeedDemoGallery(m *MemoryAdapter) error {
	var err error
	mkdir := func(parent, name string) string {
		if err != nil {
			return ""
		}
		var id string
		id, err = m.AddFolder(parent, name)
		return id
	}
	gallery := mkdir(rootID, "Boda Ana y Luis")
	ceremonia := mkdir(gallery, "Ceremonia")
	web := mkdir(ceremonia, "web")
	raw := mkdir(ceremonia, "RAW")
	rootWeb := mkdir(gallery, "web")
	if err != nil {
		return err
	}

	files := []struct {
		parent string
		name   string
		shade  uint8
	}{
		{gallery, "portada.jpg", 200},
		{gallery, "anillos.jpg", 150},
		{ceremonia, "IMG_001.jpg", 120},
		{ceremonia, "IMG_002.jpg", 90},
		{web, "IMG_001.jpg", 120},
		{raw, "IMG_001.jpg", 120},
		{rootWeb, "IMG_002.jpg", 90},
	}
	for _, f := range files {
		data, err := demoJPEG(f.shade)
		if err != nil {
			return err
		}
		id, err := m.AddFile(f.parent, f.name, data)
		if err != nil {
			return err
		}
		m.SetDimensions(id, 64, 48)
	}
	_, err = m.AddFile(ceremonia, "notas.txt", []byte("orden de la ceremonia"))
	return err
}

func demoJPEG(shade uint8) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 4), B: uint8(y * 5), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
