package model

import "time"

// Provider identifies the storage backend an account is connected to.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderDropbox   Provider = "dropbox"
	ProviderKoofr     Provider = "koofr"
)

// Valid reports whether p is one of the supported provider tags.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderMicrosoft, ProviderDropbox, ProviderKoofr:
		return true
	}
	return false
}

// UsesOAuth reports whether the provider authorizes with OAuth2 bearer tokens.
func (p Provider) UsesOAuth() bool {
	return p == ProviderGoogle || p == ProviderMicrosoft || p == ProviderDropbox
}

// CloudAccount is one user's connection to one storage provider, stored in DynamoDB.
// AccessToken and RefreshToken hold ciphertext; for Koofr AccessToken holds the
// encrypted app password and RefreshToken is empty.
type CloudAccount struct {
	ID                string     `json:"id" dynamodbav:"id"`
	UserID            string     `json:"user_id" dynamodbav:"user_id"`
	Provider          Provider   `json:"provider" dynamodbav:"provider"`
	ProviderAccountID string     `json:"provider_account_id" dynamodbav:"provider_account_id"`
	Email             string     `json:"email" dynamodbav:"email"`
	DisplayName       string     `json:"display_name" dynamodbav:"display_name"`
	Name              string     `json:"name" dynamodbav:"name"`
	AccessToken       string     `json:"-" dynamodbav:"access_token"`
	RefreshToken      string     `json:"-" dynamodbav:"refresh_token,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"` // nil: valid until revoked
	CreatedAt         time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

// Lease is a short-lived exclusive hold on a key, used to serialize token refreshes.
type Lease struct {
	Key       string `json:"key" dynamodbav:"lock_key"`
	Owner     string `json:"owner" dynamodbav:"owner"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// ExternalMedia is a video hosted on YouTube or Vimeo that was attached to a gallery.
// An empty MomentName places it in the highlights.
type ExternalMedia struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	ExternalID   string  `json:"externalId"`
	Name         string  `json:"name"`
	URL          string  `json:"url"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	MomentName   string  `json:"momentName,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
}

// GalleryConfig carries the persisted ordering and extras for one gallery.
type GalleryConfig struct {
	FileOrder     []string        `json:"fileOrder,omitempty"`
	MomentsOrder  []string        `json:"momentsOrder,omitempty"`
	ExternalMedia []ExternalMedia `json:"externalMedia,omitempty"`
	SkipFormats   bool            `json:"skipFormats,omitempty"`
}

// Formats holds alternate resolutions of a media item, keyed by role.
type Formats struct {
	Web string `json:"web,omitempty"`
	JPG string `json:"jpg,omitempty"`
	HD  string `json:"hd,omitempty"`
	Raw string `json:"raw,omitempty"`
}

// Empty reports whether no alternate was attached.
func (f Formats) Empty() bool {
	return f == Formats{}
}

// MediaItem is one photo or video in an indexed gallery.
type MediaItem struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	Name       string   `json:"name"`
	MIMEType   string   `json:"mimeType,omitempty"`
	Size       int64    `json:"size,omitempty"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	IsVideo    bool     `json:"isVideo"`
	Source     string   `json:"source"`
	ExternalID string   `json:"externalId,omitempty"`
	Duration   float64  `json:"duration,omitempty"`
	Formats    *Formats `json:"formats,omitempty"`
}

// Moment is a named content subfolder of a gallery root.
type Moment struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Items []MediaItem `json:"items"`
	Order int         `json:"order"`
}

// GalleryStructure is the indexer output for one (account, root folder) pair.
type GalleryStructure struct {
	Highlights []MediaItem `json:"highlights"`
	Moments    []Moment    `json:"moments"`
	TotalItems int         `json:"totalItems"`
}
