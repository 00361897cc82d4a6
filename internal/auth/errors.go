package auth

import (
	"errors"
	"fmt"

	"github.com/jun/gophgallery/internal/model"
)

// ErrAuth matches every error produced while resolving credentials.
var ErrAuth = errors.New("auth error")

var (
	// ErrAccountNotFound is returned when the account record does not exist or
	// belongs to another user.
	ErrAccountNotFound = fmt.Errorf("%w: account not found", ErrAuth)

	// ErrReauthRequired is returned when the stored credential can no longer be
	// refreshed and the user must connect the account again.
	ErrReauthRequired = fmt.Errorf("%w: re-authorization required", ErrAuth)
)

// RefreshError reports a failed token refresh that may succeed on retry.
type RefreshError struct {
	AccountID string
	Provider  model.Provider
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s token for account %s: %v", e.Provider, e.AccountID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Is makes every RefreshError match ErrAuth.
func (e *RefreshError) Is(target error) bool { return target == ErrAuth }
