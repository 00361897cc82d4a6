package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/transport"
	"github.com/jun/gophgallery/internal/model"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMIME = "application/vnd.google-apps.folder"
	revokeURL  = "https://oauth2.googleapis.com/revoke"

	fileFields = "id, name, mimeType, size, modifiedTime, thumbnailLink, " +
		"imageMediaMetadata(width, height), videoMediaMetadata(width, height, durationMillis)"
)

// thumbSize matches the size suffix Drive appends to thumbnail links (e.g. "=s220").
var thumbSize = regexp.MustCompile(`=s\d+(-[a-z]+)?$`)

// DriveAdapter implements adapter.StorageAdapter for Google Drive.
// Drive has no short-lived content URLs, so content is always streamed through the API.
type DriveAdapter struct {
	service     *drive.Service
	client      *transport.Client
	token       string
	callTimeout time.Duration
	RevokeURL   string
}

// NewDriveAdapter creates a DriveAdapter authorized with the credential's access token.
// Extra options (endpoint, HTTP client) are appended, which tests use to point at a fake.
func NewDriveAdapter(ctx context.Context, cred *adapter.Credential, opts ...option.ClientOption) (*DriveAdapter, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"})
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	srv, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{
		service:     srv,
		client:      transport.New("Drive", nil, transport.Bearer(cred.AccessToken)),
		token:       cred.AccessToken,
		callTimeout: transport.DefaultCallTimeout,
		RevokeURL:   revokeURL,
	}, nil
}

// Provider returns model.ProviderGoogle.
func (d *DriveAdapter) Provider() model.Provider { return model.ProviderGoogle }

// SetCallTimeout bounds each metadata call.
func (d *DriveAdapter) SetCallTimeout(timeout time.Duration) { d.callTimeout = timeout }

// Account returns the Drive user behind the token.
func (d *DriveAdapter) Account(ctx context.Context) (*adapter.AccountInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	about, err := d.service.About.Get().Fields("user(emailAddress, displayName, permissionId)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get drive user: %w", err)
	}
	if about.User == nil {
		return nil, fmt.Errorf("drive returned no user")
	}
	return &adapter.AccountInfo{
		ID:          about.User.PermissionId,
		Email:       about.User.EmailAddress,
		DisplayName: about.User.DisplayName,
	}, nil
}

// ListFolders lists folders directly under parentID ("" or "root" for My Drive).
func (d *DriveAdapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	q := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", escapeQuery(targetFolder(parentID)), folderMIME)
	folders := []adapter.Folder{}
	err := d.service.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name)").
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(r *drive.FileList) error {
			for _, f := range r.Files {
				folders = append(folders, adapter.Folder{ID: f.Id, Name: f.Name})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to list folders: %w", err)
	}
	return folders, nil
}

// ListFiles lists non-folder files directly under parentID.
func (d *DriveAdapter) ListFiles(ctx context.Context, parentID string) ([]adapter.File, error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	q := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", escapeQuery(targetFolder(parentID)), folderMIME)
	files := []adapter.File{}
	err := d.service.Files.List().
		Q(q).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(r *drive.FileList) error {
			for _, f := range r.Files {
				files = append(files, toFile(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to list files: %w", err)
	}
	return files, nil
}

// GetFile retrieves a file's metadata by its ID.
func (d *DriveAdapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	f, err := d.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("unable to get file metadata: %w", err)
	}
	file := toFile(f)
	return &file, nil
}

// GetFileContent always returns "": Drive content is fetched with OpenContent.
func (d *DriveAdapter) GetFileContent(ctx context.Context, fileID string) (string, error) {
	return "", nil
}

// OpenContent streams the file bytes through the Drive API, forwarding rng as a Range header.
func (d *DriveAdapter) OpenContent(ctx context.Context, fileID string, rng *adapter.ByteRange) (*adapter.Content, error) {
	call := d.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx)
	if rng != nil {
		call.Header().Set("Range", rng.Header())
	}
	resp, err := call.Download()
	if err != nil {
		if isNotFound(err) {
			return nil, adapter.FetchError(model.ProviderGoogle, fileID, adapter.ErrNotFound)
		}
		return nil, adapter.FetchError(model.ProviderGoogle, fileID, err)
	}
	return transport.ContentFromResponse(resp, rng), nil
}

// ThumbnailURL returns the Drive thumbnail link rewritten to the requested size.
func (d *DriveAdapter) ThumbnailURL(ctx context.Context, fileID string, size int) (string, error) {
	f, err := d.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f.Thumbnail == "" {
		return "", nil
	}
	return resizeThumbnailLink(f.Thumbnail, size), nil
}

// OpenThumbnail fetches a thumbnail link with the bearer token attached.
func (d *DriveAdapter) OpenThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error) {
	resp, err := d.client.Open(ctx, http.MethodGet, thumbnailURL, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	return resp.Body, nil
}

// GetQuota returns the Drive storage quota. Limit is 0 for unlimited plans.
func (d *DriveAdapter) GetQuota(ctx context.Context) (*adapter.Quota, error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	about, err := d.service.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get storage quota: %w", err)
	}
	if about.StorageQuota == nil {
		return &adapter.Quota{}, nil
	}
	return &adapter.Quota{Usage: about.StorageQuota.Usage, Limit: about.StorageQuota.Limit}, nil
}

// Revoke invalidates the token at Google's revocation endpoint.
func (d *DriveAdapter) Revoke(ctx context.Context) error {
	u := d.RevokeURL + "?token=" + url.QueryEscape(d.token)
	resp, err := d.client.Open(ctx, http.MethodPost, u, map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, false)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	resp.Body.Close()
	return nil
}

func toFile(f *drive.File) adapter.File {
	modTime, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	file := adapter.File{
		ID:           f.Id,
		Name:         f.Name,
		MIMEType:     adapter.GuessMIME(f.Name, f.MimeType),
		Size:         f.Size,
		ModifiedTime: modTime,
		Thumbnail:    f.ThumbnailLink,
	}
	if m := f.ImageMediaMetadata; m != nil {
		file.Width, file.Height = int(m.Width), int(m.Height)
	}
	if m := f.VideoMediaMetadata; m != nil {
		file.Width, file.Height = int(m.Width), int(m.Height)
		file.Duration = float64(m.DurationMillis) / 1000
	}
	return file
}

// targetFolder maps the empty parent to Drive's root alias.
func targetFolder(parentID string) string {
	if parentID == "" || parentID == "/" {
		return "root"
	}
	return parentID
}

// escapeQuery escapes a value for use inside a single-quoted Drive query literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// resizeThumbnailLink rewrites the "=sNNN" size suffix of a Drive thumbnail link.
func resizeThumbnailLink(link string, size int) string {
	if size <= 0 {
		return link
	}
	suffix := fmt.Sprintf("=s%d", size)
	if thumbSize.MatchString(link) {
		return thumbSize.ReplaceAllString(link, suffix)
	}
	if strings.Contains(link, "googleusercontent.com") {
		return link + suffix
	}
	return link
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}
