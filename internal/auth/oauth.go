package auth

import (
	"github.com/jun/gophgallery/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// ClientCredentials is one provider's registered OAuth application.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

var scopes = map[model.Provider][]string{
	model.ProviderGoogle: {
		"https://www.googleapis.com/auth/drive.readonly",
		"openid",
		"email",
		"profile",
	},
	model.ProviderMicrosoft: {
		"offline_access",
		"User.Read",
		"Files.Read.All",
	},
	model.ProviderDropbox: nil, // scopes are configured on the Dropbox app
}

// NewOAuthConfig builds the oauth2.Config for an OAuth provider.
// It returns nil for providers that do not use OAuth.
func NewOAuthConfig(p model.Provider, c ClientCredentials) *oauth2.Config {
	var endpoint oauth2.Endpoint
	switch p {
	case model.ProviderGoogle:
		endpoint = google.Endpoint
	case model.ProviderMicrosoft:
		endpoint = microsoft.AzureADEndpoint("common")
	case model.ProviderDropbox:
		endpoint = endpoints.Dropbox
	default:
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes[p],
	}
}

// authCodeOptions are the provider-specific parameters that make the consent screen
// return a refresh token.
func authCodeOptions(p model.Provider) []oauth2.AuthCodeOption {
	switch p {
	case model.ProviderGoogle:
		return []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	case model.ProviderDropbox:
		return []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("token_access_type", "offline")}
	case model.ProviderMicrosoft:
		return []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "select_account")}
	}
	return nil
}
