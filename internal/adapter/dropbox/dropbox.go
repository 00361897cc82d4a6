// Package dropbox implements adapter.StorageAdapter for Dropbox API v2.
// Files and folders are addressed by their lower-cased path.
package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/transport"
	"github.com/jun/gophgallery/internal/model"
)

const (
	DefaultAPIURL     = "https://api.dropboxapi.com/2"
	DefaultContentURL = "https://content.dropboxapi.com/2"
)

type entry struct {
	Tag            string    `json:".tag"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	PathDisplay    string    `json:"path_display"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
	MediaInfo      *struct {
		Metadata struct {
			Dimensions *struct {
				Width  int `json:"width"`
				Height int `json:"height"`
			} `json:"dimensions"`
			Duration int64 `json:"duration"` // milliseconds
		} `json:"metadata"`
	} `json:"media_info"`
}

type listResult struct {
	Entries []entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// Adapter is a Dropbox client bound to one access token.
type Adapter struct {
	client     *transport.Client
	apiURL     string
	contentURL string
}

// New creates an Adapter. Empty URLs use the public Dropbox endpoints.
func New(cred *adapter.Credential, apiURL, contentURL string, httpClient *http.Client) *Adapter {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if contentURL == "" {
		contentURL = DefaultContentURL
	}
	return &Adapter{
		client:     transport.New("Dropbox", httpClient, transport.Bearer(cred.AccessToken)),
		apiURL:     apiURL,
		contentURL: contentURL,
	}
}

// Factory returns an adapter.Factory for Dropbox.
func Factory(apiURL, contentURL string, httpClient *http.Client) adapter.Factory {
	return func(ctx context.Context, cred *adapter.Credential) (adapter.StorageAdapter, error) {
		return New(cred, apiURL, contentURL, httpClient), nil
	}
}

func (a *Adapter) Provider() model.Provider { return model.ProviderDropbox }

// SetCallTimeout bounds each metadata call.
func (a *Adapter) SetCallTimeout(d time.Duration) { a.client.CallTimeout = d }

func (a *Adapter) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	var acc struct {
		AccountID string `json:"account_id"`
		Email     string `json:"email"`
		Name      struct {
			DisplayName string `json:"display_name"`
		} `json:"name"`
	}
	if err := a.client.PostJSON(ctx, a.apiURL+"/users/get_current_account", nil, &acc); err != nil {
		return nil, fmt.Errorf("unable to get dropbox account: %w", err)
	}
	return &adapter.AccountInfo{ID: acc.AccountID, Email: acc.Email, DisplayName: acc.Name.DisplayName}, nil
}

func (a *Adapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	entries, err := a.list(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("unable to list folders: %w", err)
	}
	folders := []adapter.Folder{}
	for _, e := range entries {
		if e.Tag == "folder" {
			folders = append(folders, adapter.Folder{ID: e.PathLower, Name: e.Name})
		}
	}
	return folders, nil
}

func (a *Adapter) ListFiles(ctx context.Context, parentID string) ([]adapter.File, error) {
	entries, err := a.list(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("unable to list files: %w", err)
	}
	files := []adapter.File{}
	for _, e := range entries {
		if e.Tag == "file" {
			files = append(files, toFile(e))
		}
	}
	return files, nil
}

// list follows list_folder/continue until has_more is false.
func (a *Adapter) list(ctx context.Context, parentID string) ([]entry, error) {
	var res listResult
	req := map[string]any{
		"path":               rootPath(parentID),
		"include_media_info": true,
		"limit":              2000,
	}
	if err := a.client.PostJSON(ctx, a.apiURL+"/files/list_folder", req, &res); err != nil {
		return nil, err
	}
	entries := res.Entries
	for res.HasMore {
		cursor := res.Cursor
		res = listResult{}
		if err := a.client.PostJSON(ctx, a.apiURL+"/files/list_folder/continue", map[string]string{"cursor": cursor}, &res); err != nil {
			return nil, err
		}
		entries = append(entries, res.Entries...)
	}
	return entries, nil
}

func (a *Adapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	var e entry
	req := map[string]any{"path": fileID, "include_media_info": true}
	if err := a.client.PostJSON(ctx, a.apiURL+"/files/get_metadata", req, &e); err != nil {
		if isPathNotFound(err) {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get file metadata: %w", err)
	}
	if e.Tag != "file" {
		return nil, adapter.ErrNotFound
	}
	f := toFile(e)
	return &f, nil
}

// GetFileContent returns a four-hour temporary link to the file.
func (a *Adapter) GetFileContent(ctx context.Context, fileID string) (string, error) {
	var res struct {
		Link string `json:"link"`
	}
	if err := a.client.PostJSON(ctx, a.apiURL+"/files/get_temporary_link", map[string]string{"path": fileID}, &res); err != nil {
		if isPathNotFound(err) {
			err = adapter.ErrNotFound
		}
		return "", adapter.FetchError(model.ProviderDropbox, fileID, err)
	}
	return res.Link, nil
}

// OpenContent streams from the content endpoint; the path travels in Dropbox-API-Arg.
func (a *Adapter) OpenContent(ctx context.Context, fileID string, rng *adapter.ByteRange) (*adapter.Content, error) {
	arg, err := apiArg(fileID)
	if err != nil {
		return nil, adapter.FetchError(model.ProviderDropbox, fileID, err)
	}
	headers := map[string]string{"Dropbox-API-Arg": arg}
	if rng != nil {
		headers["Range"] = rng.Header()
	}
	resp, err := a.client.Open(ctx, http.MethodPost, a.contentURL+"/files/download", headers, true)
	if err != nil {
		if isPathNotFound(err) {
			err = adapter.ErrNotFound
		}
		return nil, adapter.FetchError(model.ProviderDropbox, fileID, err)
	}
	c := transport.ContentFromResponse(resp, rng)
	if c.MIMEType == "" || c.MIMEType == "application/octet-stream" {
		c.MIMEType = adapter.GuessMIME(fileID, "")
	}
	return c, nil
}

// thumbnailSizes are the size tags get_thumbnail_v2 accepts, smallest first.
var thumbnailSizes = []struct {
	tag  string
	edge int
}{
	{"w32h32", 32},
	{"w64h64", 64},
	{"w128h128", 128},
	{"w256h256", 256},
	{"w480h320", 480},
	{"w640h480", 640},
	{"w960h640", 960},
	{"w1024h768", 1024},
	{"w2048h1536", 2048},
}

// thumbnailSizeTag returns the smallest tag whose longest edge covers size.
func thumbnailSizeTag(size int) string {
	for _, s := range thumbnailSizes {
		if s.edge >= size {
			return s.tag
		}
	}
	return thumbnailSizes[len(thumbnailSizes)-1].tag
}

type thumbnailArg struct {
	Resource struct {
		Tag  string `json:".tag"`
		Path string `json:"path"`
	} `json:"resource"`
	Size struct {
		Tag string `json:".tag"`
	} `json:"size"`
	Format string `json:"format"`
}

// ThumbnailURL returns a get_thumbnail_v2 reference carrying its argument in the
// arg query parameter. OpenThumbnail turns it into the POST Dropbox expects.
func (a *Adapter) ThumbnailURL(ctx context.Context, fileID string, size int) (string, error) {
	var arg thumbnailArg
	arg.Resource.Tag = "path"
	arg.Resource.Path = fileID
	arg.Size.Tag = thumbnailSizeTag(size)
	arg.Format = "jpeg"
	b, err := json.Marshal(arg)
	if err != nil {
		return "", err
	}
	return a.thumbnailEndpoint() + "?" + url.Values{"arg": {string(b)}}.Encode(), nil
}

func (a *Adapter) thumbnailEndpoint() string {
	return a.contentURL + "/files/get_thumbnail_v2"
}

func (a *Adapter) OpenThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error) {
	endpoint, query, _ := strings.Cut(thumbnailURL, "?")
	if endpoint != a.thumbnailEndpoint() {
		return nil, adapter.ErrUnsupported
	}
	q, err := url.ParseQuery(query)
	if err != nil || q.Get("arg") == "" {
		return nil, fmt.Errorf("invalid thumbnail reference: %w", adapter.ErrUnsupported)
	}
	headers := map[string]string{"Dropbox-API-Arg": escapeHeader([]byte(q.Get("arg")))}
	resp, err := a.client.Open(ctx, http.MethodPost, endpoint, headers, true)
	if err != nil {
		if isPathNotFound(err) {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get thumbnail: %w", err)
	}
	return resp.Body, nil
}

func (a *Adapter) GetQuota(ctx context.Context) (*adapter.Quota, error) {
	var res struct {
		Used       int64 `json:"used"`
		Allocation struct {
			Allocated int64 `json:"allocated"`
		} `json:"allocation"`
	}
	if err := a.client.PostJSON(ctx, a.apiURL+"/users/get_space_usage", nil, &res); err != nil {
		return nil, fmt.Errorf("unable to get storage quota: %w", err)
	}
	return &adapter.Quota{Usage: res.Used, Limit: res.Allocation.Allocated}, nil
}

// Revoke disables the access token.
func (a *Adapter) Revoke(ctx context.Context) error {
	if err := a.client.PostJSON(ctx, a.apiURL+"/auth/token/revoke", nil, nil); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func toFile(e entry) adapter.File {
	f := adapter.File{
		ID:           e.PathLower,
		Name:         e.Name,
		MIMEType:     adapter.GuessMIME(e.Name, ""),
		Size:         e.Size,
		ModifiedTime: e.ServerModified,
	}
	if e.MediaInfo != nil {
		if d := e.MediaInfo.Metadata.Dimensions; d != nil {
			f.Width, f.Height = d.Width, d.Height
		}
		f.Duration = float64(e.MediaInfo.Metadata.Duration) / 1000
	}
	return f
}

// rootPath maps the root alias to Dropbox's empty-string root.
func rootPath(id string) string {
	if id == "/" || id == "root" {
		return ""
	}
	return id
}

// apiArg encodes the Dropbox-API-Arg header for a path argument.
func apiArg(path string) (string, error) {
	b, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return "", err
	}
	return escapeHeader(b), nil
}

// escapeHeader escapes non-ASCII characters in a JSON argument because HTTP
// headers are not UTF-8 safe.
func escapeHeader(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, r := range string(b) {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if r > 0xFFFF {
			r1, r2 := surrogates(r)
			out = append(out, fmt.Sprintf(`\u%04x\u%04x`, r1, r2)...)
			continue
		}
		out = append(out, fmt.Sprintf(`\u%04x`, r)...)
	}
	return string(out)
}

func surrogates(r rune) (rune, rune) {
	r -= 0x10000
	return 0xD800 + (r>>10)&0x3FF, 0xDC00 + r&0x3FF
}

// isPathNotFound recognizes Dropbox's 409 "path/not_found" error summaries.
func isPathNotFound(err error) bool {
	var se *adapter.StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == http.StatusNotFound {
		return true
	}
	if se.StatusCode != http.StatusConflict {
		return false
	}
	var body struct {
		ErrorSummary string `json:"error_summary"`
	}
	if json.Unmarshal([]byte(se.Body), &body) != nil {
		return false
	}
	return strings.Contains(body.ErrorSummary, "not_found")
}
