// Package graph implements adapter.StorageAdapter for OneDrive through Microsoft Graph.
package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/transport"
	"github.com/jun/gophgallery/internal/model"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	DownloadURL          string    `json:"@microsoft.graph.downloadUrl"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Image *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
	Video *struct {
		Width    int   `json:"width"`
		Height   int   `json:"height"`
		Duration int64 `json:"duration"` // milliseconds
	} `json:"video"`
	Thumbnails []thumbnailSet `json:"thumbnails"`
}

type thumbnailSet struct {
	Small  *thumbnail `json:"small"`
	Medium *thumbnail `json:"medium"`
	Large  *thumbnail `json:"large"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type itemPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// Adapter talks to the signed-in user's default drive.
type Adapter struct {
	client  *transport.Client
	baseURL string
}

// New creates an Adapter. An empty baseURL uses DefaultBaseURL.
func New(cred *adapter.Credential, baseURL string, httpClient *http.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		client:  transport.New("Graph", httpClient, transport.Bearer(cred.AccessToken)),
		baseURL: baseURL,
	}
}

// Factory returns an adapter.Factory for Graph against baseURL.
func Factory(baseURL string, httpClient *http.Client) adapter.Factory {
	return func(ctx context.Context, cred *adapter.Credential) (adapter.StorageAdapter, error) {
		return New(cred, baseURL, httpClient), nil
	}
}

func (a *Adapter) Provider() model.Provider { return model.ProviderMicrosoft }

// SetCallTimeout bounds each metadata call.
func (a *Adapter) SetCallTimeout(d time.Duration) { a.client.CallTimeout = d }

func (a *Adapter) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	var me struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/me", &me); err != nil {
		return nil, fmt.Errorf("unable to get graph user: %w", err)
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return &adapter.AccountInfo{ID: me.ID, Email: email, DisplayName: me.DisplayName}, nil
}

func (a *Adapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	items, err := a.children(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("unable to list folders: %w", err)
	}
	folders := []adapter.Folder{}
	for _, it := range items {
		if it.Folder != nil {
			folders = append(folders, adapter.Folder{ID: it.ID, Name: it.Name})
		}
	}
	return folders, nil
}

func (a *Adapter) ListFiles(ctx context.Context, parentID string) ([]adapter.File, error) {
	items, err := a.children(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("unable to list files: %w", err)
	}
	files := []adapter.File{}
	for _, it := range items {
		if it.Folder == nil {
			files = append(files, toFile(it))
		}
	}
	return files, nil
}

// children collects every page of a folder listing.
func (a *Adapter) children(ctx context.Context, parentID string) ([]driveItem, error) {
	next := a.itemURL(parentID) + "/children?$expand=thumbnails&$top=999"
	var items []driveItem
	for next != "" {
		var page itemPage
		if err := a.client.GetJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
		next = page.NextLink
	}
	return items, nil
}

func (a *Adapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	it, err := a.item(ctx, fileID, true)
	if err != nil {
		return nil, err
	}
	f := toFile(*it)
	return &f, nil
}

func (a *Adapter) item(ctx context.Context, fileID string, thumbs bool) (*driveItem, error) {
	u := a.itemURL(fileID)
	if thumbs {
		u += "?$expand=thumbnails"
	}
	var it driveItem
	if err := a.client.GetJSON(ctx, u, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// GetFileContent returns the pre-authenticated download URL Graph attaches to file items.
func (a *Adapter) GetFileContent(ctx context.Context, fileID string) (string, error) {
	it, err := a.item(ctx, fileID, false)
	if err != nil {
		return "", adapter.FetchError(model.ProviderMicrosoft, fileID, err)
	}
	return it.DownloadURL, nil
}

// OpenContent fetches the download URL without a bearer token; it is already signed.
func (a *Adapter) OpenContent(ctx context.Context, fileID string, rng *adapter.ByteRange) (*adapter.Content, error) {
	u, err := a.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if u == "" {
		return nil, adapter.FetchError(model.ProviderMicrosoft, fileID, fmt.Errorf("item has no download url"))
	}
	var headers map[string]string
	if rng != nil {
		headers = map[string]string{"Range": rng.Header()}
	}
	resp, err := a.client.Open(ctx, http.MethodGet, u, headers, false)
	if err != nil {
		return nil, adapter.FetchError(model.ProviderMicrosoft, fileID, err)
	}
	return transport.ContentFromResponse(resp, rng), nil
}

// ThumbnailURL picks the smallest Graph thumbnail at least size pixels wide,
// falling back to the largest one available.
func (a *Adapter) ThumbnailURL(ctx context.Context, fileID string, size int) (string, error) {
	it, err := a.item(ctx, fileID, true)
	if err != nil {
		return "", err
	}
	return pickThumbnail(it.Thumbnails, size), nil
}

func (a *Adapter) OpenThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error) {
	resp, err := a.client.Open(ctx, http.MethodGet, thumbnailURL, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	return resp.Body, nil
}

func (a *Adapter) GetQuota(ctx context.Context) (*adapter.Quota, error) {
	var d struct {
		Quota struct {
			Total int64 `json:"total"`
			Used  int64 `json:"used"`
		} `json:"quota"`
	}
	if err := a.client.GetJSON(ctx, a.baseURL+"/me/drive", &d); err != nil {
		return nil, fmt.Errorf("unable to get storage quota: %w", err)
	}
	return &adapter.Quota{Usage: d.Quota.Used, Limit: d.Quota.Total}, nil
}

func (a *Adapter) itemURL(id string) string {
	if id == "" || id == "root" || id == "/" {
		return a.baseURL + "/me/drive/root"
	}
	return a.baseURL + "/me/drive/items/" + url.PathEscape(id)
}

func toFile(it driveItem) adapter.File {
	f := adapter.File{
		ID:           it.ID,
		Name:         it.Name,
		Size:         it.Size,
		ModifiedTime: it.LastModifiedDateTime,
	}
	var reported string
	if it.File != nil {
		reported = it.File.MimeType
	}
	f.MIMEType = adapter.GuessMIME(it.Name, reported)
	if it.Image != nil {
		f.Width, f.Height = it.Image.Width, it.Image.Height
	}
	if it.Video != nil {
		f.Width, f.Height = it.Video.Width, it.Video.Height
		f.Duration = float64(it.Video.Duration) / 1000
	}
	f.Thumbnail = pickThumbnail(it.Thumbnails, 400)
	return f
}

func pickThumbnail(sets []thumbnailSet, size int) string {
	if len(sets) == 0 {
		return ""
	}
	s := sets[0]
	var largest string
	for _, t := range []*thumbnail{s.Small, s.Medium, s.Large} {
		if t == nil || t.URL == "" {
			continue
		}
		if t.Width >= size {
			return t.URL
		}
		largest = t.URL
	}
	return largest
}
