// Package koofr implements adapter.StorageAdapter for Koofr's REST API.
// Koofr authenticates every call with HTTP Basic credentials (email plus an app
// password) and addresses files by their full path inside the primary mount.
package koofr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/transport"
	"github.com/jun/gophgallery/internal/model"
)

// DefaultBaseURL is Koofr's public API host.
const DefaultBaseURL = "https://app.koofr.net"

// bytesPerMB converts Koofr's mount space figures, which are reported in MiB.
const bytesPerMB = 1024 * 1024

type mount struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrimary  bool   `json:"isPrimary"`
	SpaceTotal int64  `json:"spaceTotal"`
	SpaceUsed  int64  `json:"spaceUsed"`
}

type fileInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "dir" or "file"
	Modified    int64  `json:"modified"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Adapter is a Koofr client bound to one set of Basic credentials.
type Adapter struct {
	client  *transport.Client
	baseURL string

	mu    sync.Mutex
	mount *mount
}

// New creates an Adapter. An empty baseURL uses DefaultBaseURL.
func New(cred *adapter.Credential, baseURL string, httpClient *http.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		client:  transport.New("Koofr", httpClient, transport.Basic(cred.Username, cred.Password)),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Factory returns an adapter.Factory for Koofr.
func Factory(baseURL string, httpClient *http.Client) adapter.Factory {
	return func(ctx context.Context, cred *adapter.Credential) (adapter.StorageAdapter, error) {
		if cred.Username == "" || cred.Password == "" {
			return nil, fmt.Errorf("koofr credential requires username and password")
		}
		return New(cred, baseURL, httpClient), nil
	}
}

func (a *Adapter) Provider() model.Provider { return model.ProviderKoofr }

// SetCallTimeout bounds each metadata call.
func (a *Adapter) SetCallTimeout(d time.Duration) { a.client.CallTimeout = d }

func (a *Adapter) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	var u struct {
		ID        string `json:"id"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/api/v2/user", &u); err != nil {
		return nil, fmt.Errorf("unable to get koofr user: %w", err)
	}
	return &adapter.AccountInfo{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}, nil
}

// primaryMount returns the account's primary mount, caching it after the first lookup.
func (a *Adapter) primaryMount(ctx context.Context) (*mount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mount != nil {
		return a.mount, nil
	}
	var res struct {
		Mounts []mount `json:"mounts"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/api/v2/mounts", &res); err != nil {
		return nil, fmt.Errorf("unable to list mounts: %w", err)
	}
	for i := range res.Mounts {
		if res.Mounts[i].IsPrimary {
			a.mount = &res.Mounts[i]
			return a.mount, nil
		}
	}
	if len(res.Mounts) > 0 {
		a.mount = &res.Mounts[0]
		return a.mount, nil
	}
	return nil, fmt.Errorf("koofr account has no mounts")
}

func (a *Adapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	dir := normalizePath(parentID)
	infos, err := a.list(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list folders: %w", err)
	}
	folders := []adapter.Folder{}
	for _, fi := range infos {
		if fi.Type == "dir" {
			folders = append(folders, adapter.Folder{ID: path.Join(dir, fi.Name), Name: fi.Name})
		}
	}
	return folders, nil
}

func (a *Adapter) ListFiles(ctx context.Context, parentID string) ([]adapter.File, error) {
	dir := normalizePath(parentID)
	infos, err := a.list(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list files: %w", err)
	}
	files := []adapter.File{}
	for _, fi := range infos {
		if fi.Type == "file" {
			files = append(files, toFile(path.Join(dir, fi.Name), fi))
		}
	}
	return files, nil
}

func (a *Adapter) list(ctx context.Context, dir string) ([]fileInfo, error) {
	m, err := a.primaryMount(ctx)
	if err != nil {
		return nil, err
	}
	var res struct {
		Files []fileInfo `json:"files"`
	}
	u := fmt.Sprintf("%s/api/v2/mounts/%s/files/list?path=%s", a.baseURL, url.PathEscape(m.ID), url.QueryEscape(dir))
	if err := a.client.GetJSON(ctx, u, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

func (a *Adapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	m, err := a.primaryMount(ctx)
	if err != nil {
		return nil, err
	}
	p := normalizePath(fileID)
	var fi fileInfo
	u := fmt.Sprintf("%s/api/v2/mounts/%s/files/info?path=%s", a.baseURL, url.PathEscape(m.ID), url.QueryEscape(p))
	if err := a.client.GetJSON(ctx, u, &fi); err != nil {
		return nil, fmt.Errorf("unable to get file metadata: %w", err)
	}
	if fi.Type != "file" {
		return nil, adapter.ErrNotFound
	}
	f := toFile(p, fi)
	return &f, nil
}

// GetFileContent returns the content API URL. It is not signed: whoever fetches it
// must attach the account's Basic credentials, which OpenContent does.
func (a *Adapter) GetFileContent(ctx context.Context, fileID string) (string, error) {
	m, err := a.primaryMount(ctx)
	if err != nil {
		return "", adapter.FetchError(model.ProviderKoofr, fileID, err)
	}
	return fmt.Sprintf("%s/content/api/v2/mounts/%s/files/get?path=%s",
		a.baseURL, url.PathEscape(m.ID), url.QueryEscape(normalizePath(fileID))), nil
}

func (a *Adapter) OpenContent(ctx context.Context, fileID string, rng *adapter.ByteRange) (*adapter.Content, error) {
	u, err := a.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, err
	}
	var headers map[string]string
	if rng != nil {
		headers = map[string]string{"Range": rng.Header()}
	}
	resp, err := a.client.Open(ctx, http.MethodGet, u, headers, true)
	if err != nil {
		return nil, adapter.FetchError(model.ProviderKoofr, fileID, err)
	}
	c := transport.ContentFromResponse(resp, rng)
	if t := adapter.GuessMIME(fileID, ""); t != "application/octet-stream" {
		c.MIMEType = t
	}
	return c, nil
}

// ThumbnailURL returns "": thumbnails are produced by resizing the original.
func (a *Adapter) ThumbnailURL(ctx context.Context, fileID string, size int) (string, error) {
	return "", nil
}

func (a *Adapter) OpenThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error) {
	return nil, adapter.ErrUnsupported
}

// GetQuota reads the primary mount's space figures. Koofr has no cheaper authenticated
// call, so this doubles as credential verification.
func (a *Adapter) GetQuota(ctx context.Context) (*adapter.Quota, error) {
	m, err := a.primaryMount(ctx)
	if err != nil {
		return nil, err
	}
	return &adapter.Quota{Usage: m.SpaceUsed * bytesPerMB, Limit: m.SpaceTotal * bytesPerMB}, nil
}

func toFile(p string, fi fileInfo) adapter.File {
	f := adapter.File{
		ID:       p,
		Name:     fi.Name,
		MIMEType: adapter.GuessMIME(fi.Name, fi.ContentType),
		Size:     fi.Size,
	}
	if fi.Modified > 0 {
		f.ModifiedTime = time.UnixMilli(fi.Modified).UTC()
	}
	return f
}

// normalizePath turns "", "root" and relative paths into absolute mount paths.
func normalizePath(p string) string {
	if p == "" || p == "root" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
