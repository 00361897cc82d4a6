package config

import (
	"testing"
	"time"

	"github.com/jun/gophgallery/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DEV_MODE", "CLOUD_ACCOUNTS_TABLE", "PUBLIC_BASE_URL", "REFRESH_MARGIN", "LOCK_WAIT", "RATE_LIMIT_RPS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.DevMode {
		t.Error("DevMode should default to false")
	}
	if cfg.AccountsTable != "CloudAccounts" || cfg.LocksTable != "RefreshLocks" {
		t.Errorf("unexpected tables: %s %s", cfg.AccountsTable, cfg.LocksTable)
	}
	if cfg.RefreshMargin != 60*time.Second || cfg.LockWait != 10*time.Second {
		t.Errorf("unexpected durations: %s %s", cfg.RefreshMargin, cfg.LockWait)
	}
	if cfg.ClientSecretParams[model.ProviderDropbox] != "/gophgallery/dropbox-client-secret" {
		t.Errorf("unexpected secret param: %s", cfg.ClientSecretParams[model.ProviderDropbox])
	}
	if cfg.RateLimit != 10 || cfg.RateBurst != 20 {
		t.Errorf("unexpected rate limit: %g/%d", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("PUBLIC_BASE_URL", "https://gallery.example.com/")
	t.Setenv("PROVIDER_CALL_TIMEOUT", "5s")
	t.Setenv("LOCK_WAIT", "not-a-duration")
	t.Setenv("MICROSOFT_CLIENT_ID", "ms-client")
	cfg := Load()

	if !cfg.DevMode {
		t.Error("expected DevMode")
	}
	if cfg.ProviderCallTimeout != 5*time.Second {
		t.Errorf("ProviderCallTimeout = %s", cfg.ProviderCallTimeout)
	}
	if cfg.LockWait != 10*time.Second {
		t.Errorf("invalid LOCK_WAIT should fall back, got %s", cfg.LockWait)
	}
	if cfg.ClientIDs[model.ProviderMicrosoft] != "ms-client" {
		t.Errorf("ClientIDs = %v", cfg.ClientIDs)
	}
	if got := cfg.RedirectURL(model.ProviderGoogle); got != "https://gallery.example.com/api/accounts/google/callback" {
		t.Errorf("RedirectURL = %s", got)
	}
}
