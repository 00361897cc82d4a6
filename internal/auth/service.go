package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jun/gophgallery/internal/account"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/crypto"
	"github.com/jun/gophgallery/internal/lock"
	"github.com/jun/gophgallery/internal/model"
	"golang.org/x/oauth2"
)

const (
	// DefaultSafetyMargin refreshes tokens this long before they expire.
	DefaultSafetyMargin = 60 * time.Second
	// DefaultLockWait bounds how long a refresh waits for another process's lease.
	DefaultLockWait = 10 * time.Second
	defaultLockPoll = 200 * time.Millisecond
)

// AuthService resolves fresh credentials for stored accounts and runs the connect
// and disconnect flows.
type AuthService struct {
	store    account.Store
	enc      crypto.Encryptor
	locker   lock.Locker
	registry *adapter.Registry
	configs  map[model.Provider]*oauth2.Config

	// HTTPClient, when set, is used for token endpoint calls.
	HTTPClient   *http.Client
	SafetyMargin time.Duration
	LockWait     time.Duration
	LockPoll     time.Duration

	owner string
	mu    sync.Mutex
	locks map[string]*accountMutex
}

// accountMutex serializes refreshes of one account. refs counts holders and waiters
// so the entry can be dropped once nobody uses it.
type accountMutex struct {
	sync.Mutex
	refs int
}

// NewAuthService creates a new AuthService. configs holds one oauth2.Config per
// OAuth provider; a provider missing from it cannot be connected or refreshed.
func NewAuthService(store account.Store, enc crypto.Encryptor, locker lock.Locker, registry *adapter.Registry, configs map[model.Provider]*oauth2.Config) *AuthService {
	return &AuthService{
		store:        store,
		enc:          enc,
		locker:       locker,
		registry:     registry,
		configs:      configs,
		SafetyMargin: DefaultSafetyMargin,
		LockWait:     DefaultLockWait,
		LockPoll:     defaultLockPoll,
		owner:        uuid.New().String(),
		locks:        make(map[string]*accountMutex),
	}
}

// Config returns the OAuth2 config for p, or nil.
func (s *AuthService) Config(p model.Provider) *oauth2.Config {
	return s.configs[p]
}

// lockAccount blocks until the caller holds accountID's refresh mutex and returns
// the matching unlock.
func (s *AuthService) lockAccount(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &accountMutex{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *AuthService) needsRefresh(acc *model.CloudAccount) bool {
	if !acc.Provider.UsesOAuth() {
		return false
	}
	if acc.AccessToken == "" {
		return true
	}
	return acc.ExpiresAt != nil && !time.Now().Add(s.SafetyMargin).Before(*acc.ExpiresAt)
}

// GetFreshAuth returns a credential for accountID that stays valid for at least the
// safety margin. Expired OAuth tokens are refreshed and persisted first; concurrent
// callers for the same account share a single refresh.
func (s *AuthService) GetFreshAuth(ctx context.Context, accountID string) (*adapter.Credential, error) {
	acc, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !s.needsRefresh(acc) {
		return s.credential(ctx, acc)
	}

	unlock := s.lockAccount(accountID)
	defer unlock()

	leaseKey := "refresh#" + accountID
	if s.locker != nil {
		_, ok, err := lock.AcquireWait(ctx, s.locker, leaseKey, s.owner, s.LockWait, s.LockPoll)
		switch {
		case err != nil:
			log.Printf("[Auth] Lease for %s unavailable, refreshing without it: %v", accountID, err)
		case !ok:
			log.Printf("[Auth] Timed out waiting for refresh lease on %s (%s), proceeding", accountID, s.leaseHolder(ctx, leaseKey))
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), leaseKey, s.owner); err != nil {
					log.Printf("[Auth] Failed to release lease %s: %v", leaseKey, err)
				}
			}()
		}
	}

	// Another caller may have refreshed while we waited.
	acc, err = s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !s.needsRefresh(acc) {
		return s.credential(ctx, acc)
	}
	return s.refresh(ctx, acc)
}

// leaseHolder describes who holds key, for logging.
func (s *AuthService) leaseHolder(ctx context.Context, key string) string {
	lease, err := s.locker.Status(ctx, key)
	switch {
	case err != nil:
		return fmt.Sprintf("holder unknown: %v", err)
	case lease == nil:
		return "lease already released"
	default:
		return fmt.Sprintf("held by %s until %s", lease.Owner, time.Unix(lease.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}
}

func (s *AuthService) load(ctx context.Context, accountID string) (*model.CloudAccount, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	return acc, nil
}

// credential decrypts the stored secret into a ready-to-use Credential.
func (s *AuthService) credential(ctx context.Context, acc *model.CloudAccount) (*adapter.Credential, error) {
	secret, err := s.enc.Decrypt(ctx, acc.ID, acc.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	cred := &adapter.Credential{AccountID: acc.ID, Provider: acc.Provider, Expiry: acc.ExpiresAt}
	if acc.Provider == model.ProviderKoofr {
		cred.Username = acc.Email
		cred.Password = secret
	} else {
		cred.AccessToken = secret
	}
	return cred, nil
}

func (s *AuthService) refresh(ctx context.Context, acc *model.CloudAccount) (*adapter.Credential, error) {
	if acc.RefreshToken == "" {
		return nil, ErrReauthRequired
	}
	cfg := s.configs[acc.Provider]
	if cfg == nil {
		return nil, &RefreshError{AccountID: acc.ID, Provider: acc.Provider, Err: fmt.Errorf("no oauth config for provider")}
	}
	refreshToken, err := s.enc.Decrypt(ctx, acc.ID, acc.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}
	stale := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour), // Force refresh
	}
	tok, err := cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized) {
			log.Printf("[Auth] Refresh token for %s rejected: %v", acc.ID, err)
			return nil, fmt.Errorf("%w: %s", ErrReauthRequired, re.ErrorCode)
		}
		return nil, &RefreshError{AccountID: acc.ID, Provider: acc.Provider, Err: err}
	}

	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}
	cred := &adapter.Credential{AccountID: acc.ID, Provider: acc.Provider, AccessToken: tok.AccessToken, Expiry: expiry}

	if err := s.persist(ctx, acc, tok, refreshToken, expiry); err != nil {
		log.Printf("[Auth] Failed to persist refreshed token for %s: %v", acc.ID, err)
	} else {
		log.Printf("[Auth] Refreshed %s token for %s", acc.Provider, acc.ID)
	}
	return cred, nil
}

func (s *AuthService) persist(ctx context.Context, acc *model.CloudAccount, tok *oauth2.Token, oldRefresh string, expiry *time.Time) error {
	encAccess, err := s.enc.Encrypt(ctx, acc.ID, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var encRefresh string
	if tok.RefreshToken != "" && tok.RefreshToken != oldRefresh {
		if encRefresh, err = s.enc.Encrypt(ctx, acc.ID, tok.RefreshToken); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	return s.store.UpdateTokens(ctx, acc.ID, encAccess, encRefresh, expiry)
}

// GetAdapter returns a StorageAdapter bound to a fresh credential for accountID.
func (s *AuthService) GetAdapter(ctx context.Context, accountID string) (adapter.StorageAdapter, error) {
	cred, err := s.GetFreshAuth(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.registry.New(ctx, cred)
}
