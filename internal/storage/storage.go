// Package storage is the listing boundary used by browsing and indexing.
// A failed listing degrades to an empty result so one unreadable folder never
// aborts a whole page; callers that need the failure (credential verification)
// call the adapter directly.
package storage

import (
	"context"
	"log"

	"github.com/jun/gophgallery/internal/adapter"
)

// ListFolders lists folders under parentID, returning an empty slice on error.
func ListFolders(ctx context.Context, ad adapter.StorageAdapter, parentID string) []adapter.Folder {
	folders, err := ad.ListFolders(ctx, parentID)
	if err != nil {
		log.Printf("[Storage] %s: list folders under %q failed: %v", ad.Provider(), parentID, err)
		return []adapter.Folder{}
	}
	if folders == nil {
		return []adapter.Folder{}
	}
	return folders
}

// ListFiles lists files under parentID, returning an empty slice on error.
func ListFiles(ctx context.Context, ad adapter.StorageAdapter, parentID string) []adapter.File {
	files, err := ad.ListFiles(ctx, parentID)
	if err != nil {
		log.Printf("[Storage] %s: list files under %q failed: %v", ad.Provider(), parentID, err)
		return []adapter.File{}
	}
	if files == nil {
		return []adapter.File{}
	}
	return files
}

// Listing is one folder's direct children.
type Listing struct {
	Folders []adapter.Folder `json:"folders"`
	Files   []adapter.File   `json:"files"`
}

// Browser lists folders of connected accounts.
type Browser struct {
	provider adapter.StorageProvider
}

// NewBrowser creates a Browser.
func NewBrowser(provider adapter.StorageProvider) *Browser {
	return &Browser{provider: provider}
}

// List returns the children of parentID in accountID's storage. Credential errors
// are returned; listing errors yield empty slices.
func (b *Browser) List(ctx context.Context, accountID, parentID string) (*Listing, error) {
	ad, err := b.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Listing{
		Folders: ListFolders(ctx, ad, parentID),
		Files:   ListFiles(ctx, ad, parentID),
	}, nil
}
