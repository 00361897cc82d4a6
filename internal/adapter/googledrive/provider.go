package googledrive

import (
	"context"

	"github.com/jun/gophgallery/internal/adapter"
	"google.golang.org/api/option"
)

// Factory returns an adapter.Factory that builds DriveAdapters. Options are passed to
// every drive.Service, e.g. a custom endpoint in DEV_MODE.
func Factory(opts ...option.ClientOption) adapter.Factory {
	return func(ctx context.Context, cred *adapter.Credential) (adapter.StorageAdapter, error) {
		return NewDriveAdapter(ctx, cred, opts...)
	}
}
