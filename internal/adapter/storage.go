package adapter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jun/gophgallery/internal/model"
)

// Folder is a container object as reported by a provider.
// ID is provider-opaque: a short token on Drive and Graph, a path on Dropbox and Koofr.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// File is a non-container object as reported by a provider.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MIMEType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modifiedTime,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
}

// Quota is the storage usage of an account, in bytes.
type Quota struct {
	Usage int64 `json:"usage"`
	Limit int64 `json:"limit"`
}

// AccountInfo identifies the provider-side account behind a credential.
type AccountInfo struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// ByteRange is an inclusive byte interval. End < 0 means "to the end of the object".
type ByteRange struct {
	Start int64
	End   int64
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Content is an open stream of file bytes. The caller must close Body.
// Partial is false when the provider ignored a requested range and sent the whole object.
type Content struct {
	Body     io.ReadCloser
	Length   int64 // bytes in Body, -1 if unknown
	MIMEType string
	Partial  bool
}

// Credential is a ready-to-use authorization for one account.
// OAuth providers fill AccessToken; Koofr fills Username and Password.
type Credential struct {
	AccountID   string
	Provider    model.Provider
	AccessToken string
	Expiry      *time.Time
	Username    string
	Password    string
}

// StorageAdapter normalizes one provider's file API. Implementations never leak
// provider-specific addressing or authorization past this boundary.
type StorageAdapter interface {
	// Provider returns the provider tag this adapter talks to.
	Provider() model.Provider

	// Account returns the identity behind the credential.
	Account(ctx context.Context) (*AccountInfo, error)

	// ListFolders lists containers directly under parentID (non-recursive).
	ListFolders(ctx context.Context, parentID string) ([]Folder, error)

	// ListFiles lists non-container objects directly under parentID.
	ListFiles(ctx context.Context, parentID string) ([]File, error)

	// GetFile returns metadata for a single file.
	GetFile(ctx context.Context, fileID string) (*File, error)

	// GetFileContent resolves a short-lived URL for the file bytes, or "" when the
	// provider has no URL-based content access.
	GetFileContent(ctx context.Context, fileID string) (string, error)

	// OpenContent streams the file bytes, optionally restricted to rng.
	OpenContent(ctx context.Context, fileID string, rng *ByteRange) (*Content, error)

	// ThumbnailURL returns the provider's native thumbnail URL sized to roughly size
	// pixels, or "" when none exists.
	ThumbnailURL(ctx context.Context, fileID string, size int) (string, error)

	// OpenThumbnail fetches a thumbnail URL with the adapter's authorization attached.
	OpenThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error)

	// GetQuota returns the storage quota. Providers without a cheap metadata check use
	// it to verify credentials.
	GetQuota(ctx context.Context) (*Quota, error)
}

// Revoker is implemented by adapters whose provider supports remote token revocation.
type Revoker interface {
	Revoke(ctx context.Context) error
}
