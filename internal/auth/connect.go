package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jun/gophgallery/internal/account"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
	"golang.org/x/oauth2"
)

// AuthURL returns the consent URL for connecting a provider.
func (s *AuthService) AuthURL(p model.Provider, state string) (string, error) {
	cfg := s.configs[p]
	if cfg == nil {
		return "", fmt.Errorf("%w: %s", adapter.ErrUnsupported, p)
	}
	return cfg.AuthCodeURL(state, authCodeOptions(p)...), nil
}

// Exchange completes an OAuth connect: it exchanges code, identifies the provider
// account and upserts the record for userID.
func (s *AuthService) Exchange(ctx context.Context, userID string, p model.Provider, code string) (*model.CloudAccount, error) {
	cfg := s.configs[p]
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupported, p)
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", ErrAuth, err)
	}

	ad, err := s.registry.New(ctx, &adapter.Credential{Provider: p, AccessToken: tok.AccessToken})
	if err != nil {
		return nil, err
	}
	info, err := ad.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to identify %s account: %w", p, err)
	}

	acc := &model.CloudAccount{
		UserID:            userID,
		Provider:          p,
		ProviderAccountID: info.ID,
		Email:             info.Email,
		DisplayName:       info.DisplayName,
		Name:              info.DisplayName,
	}
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		acc.ExpiresAt = &e
	}
	if err := s.save(ctx, acc, tok.AccessToken, tok.RefreshToken); err != nil {
		return nil, err
	}
	log.Printf("[Auth] Connected %s account %s for user %s", p, acc.ID, userID)
	return acc, nil
}

// ConnectKoofr verifies Basic credentials against the live API and stores them.
// Verification errors are returned as-is so the caller sees why it failed.
func (s *AuthService) ConnectKoofr(ctx context.Context, userID, email, password string) (*model.CloudAccount, error) {
	cred := &adapter.Credential{Provider: model.ProviderKoofr, Username: email, Password: password}
	ad, err := s.registry.New(ctx, cred)
	if err != nil {
		return nil, err
	}
	if _, err := ad.GetQuota(ctx); err != nil {
		return nil, fmt.Errorf("koofr credential verification failed: %w", err)
	}
	info, err := ad.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to identify koofr account: %w", err)
	}
	providerID := info.ID
	if providerID == "" {
		providerID = email
	}

	acc := &model.CloudAccount{
		UserID:            userID,
		Provider:          model.ProviderKoofr,
		ProviderAccountID: providerID,
		Email:             email,
		DisplayName:       info.DisplayName,
		Name:              "Koofr",
	}
	if err := s.save(ctx, acc, password, ""); err != nil {
		return nil, err
	}
	log.Printf("[Auth] Connected koofr account %s for user %s", acc.ID, userID)
	return acc, nil
}

// save encrypts the secrets under the account's deterministic id and upserts it.
func (s *AuthService) save(ctx context.Context, acc *model.CloudAccount, access, refresh string) error {
	id := account.ID(acc.UserID, acc.Provider, acc.ProviderAccountID)
	var err error
	if acc.AccessToken, err = s.enc.Encrypt(ctx, id, access); err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	if refresh != "" {
		if acc.RefreshToken, err = s.enc.Encrypt(ctx, id, refresh); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	} else if existing, err := s.store.Get(ctx, id); err == nil {
		// Providers may omit the refresh token on re-consent; keep the old one.
		acc.RefreshToken = existing.RefreshToken
	}
	return s.store.Upsert(ctx, acc)
}

// Account returns the account if it belongs to userID.
func (s *AuthService) Account(ctx context.Context, userID, accountID string) (*model.CloudAccount, error) {
	acc, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// Accounts lists userID's connected accounts.
func (s *AuthService) Accounts(ctx context.Context, userID string) ([]model.CloudAccount, error) {
	return s.store.ListByUser(ctx, userID)
}

// Disconnect revokes the account's token where the provider supports it and deletes
// the record. Revocation is best-effort and never blocks the deletion.
func (s *AuthService) Disconnect(ctx context.Context, userID, accountID string) error {
	if _, err := s.Account(ctx, userID, accountID); err != nil {
		return err
	}

	revokeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if ad, err := s.GetAdapter(revokeCtx, accountID); err != nil {
		log.Printf("[Auth] Skipping revocation for %s: %v", accountID, err)
	} else if r, ok := ad.(adapter.Revoker); ok {
		if err := r.Revoke(revokeCtx); err != nil {
			log.Printf("[Auth] Revocation failed for %s: %v", accountID, err)
		}
	}

	if err := s.store.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	log.Printf("[Auth] Disconnected account %s", accountID)
	return nil
}
