package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/gophgallery/internal/model"
	"github.com/jun/gophgallery/internal/storage"
)

// AccountService is the part of auth.AuthService used by the account routes.
type AccountService interface {
	AuthURL(p model.Provider, state string) (string, error)
	Exchange(ctx context.Context, userID string, p model.Provider, code string) (*model.CloudAccount, error)
	ConnectKoofr(ctx context.Context, userID, email, password string) (*model.CloudAccount, error)
	Account(ctx context.Context, userID, accountID string) (*model.CloudAccount, error)
	Accounts(ctx context.Context, userID string) ([]model.CloudAccount, error)
	Disconnect(ctx context.Context, userID, accountID string) error
}

// AccountHandler connects, lists, browses and disconnects storage accounts.
type AccountHandler struct {
	accounts    AccountService
	browser     *storage.Browser
	jwtSecret   string
	frontendURL string
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountService, browser *storage.Browser, jwtSecret, frontendURL string) *AccountHandler {
	return &AccountHandler{accounts: accounts, browser: browser, jwtSecret: jwtSecret, frontendURL: frontendURL}
}

func pathProvider(req events.APIGatewayProxyRequest) (model.Provider, bool) {
	p := model.Provider(strings.ToLower(req.PathParameters["provider"]))
	return p, p.Valid() && p.UsesOAuth()
}

// Login redirects to the provider's consent page.
func (h *AccountHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return errorResponse(errUnauthorized), nil
	}
	p, ok := pathProvider(req)
	if !ok {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Unsupported provider"}), nil
	}

	state, err := signState(userID, p, h.jwtSecret)
	if err != nil {
		return errorResponse(err), nil
	}
	authURL, err := h.accounts.AuthURL(p, state)
	if err != nil {
		return errorResponse(err), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": authURL},
	}, nil
}

// Callback completes the OAuth flow and redirects back to the frontend.
func (h *AccountHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := pathProvider(req)
	if !ok {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Unsupported provider"}), nil
	}
	if e := req.QueryStringParameters["error"]; e != "" {
		log.Printf("[Handler] %s consent declined: %s", p, e)
		return h.redirect(url.Values{"error": {"consent_denied"}, "provider": {string(p)}}), nil
	}
	code := req.QueryStringParameters["code"]
	if code == "" {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Missing code"}), nil
	}
	userID, err := verifyState(req.QueryStringParameters["state"], p, h.jwtSecret)
	if err != nil {
		log.Printf("[Handler] %s callback rejected: %v", p, err)
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Invalid state"}), nil
	}

	acc, err := h.accounts.Exchange(ctx, userID, p, code)
	if err != nil {
		log.Printf("[Handler] %s connect failed for user %s: %v", p, userID, err)
		return h.redirect(url.Values{"error": {"connect_failed"}, "provider": {string(p)}}), nil
	}
	return h.redirect(url.Values{"connected": {acc.ID}, "provider": {string(p)}}), nil
}

func (h *AccountHandler) redirect(q url.Values) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": h.frontendURL + "/accounts?" + q.Encode()},
	}
}

// ConnectKoofr stores Koofr credentials after verifying them.
func (h *AccountHandler) ConnectKoofr(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return errorResponse(errUnauthorized), nil
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Invalid request body"}), nil
	}
	if body.Email == "" || body.Password == "" {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "email and password are required"}), nil
	}

	acc, err := h.accounts.ConnectKoofr(ctx, userID, body.Email, body.Password)
	if err != nil {
		log.Printf("[Handler] koofr connect failed for user %s: %v", userID, err)
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Could not verify Koofr credentials", Code: "KOOFR_VERIFY_FAILED"}), nil
	}
	return jsonResponse(http.StatusCreated, acc), nil
}

// List returns the user's connected accounts.
func (h *AccountHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return errorResponse(errUnauthorized), nil
	}
	accounts, err := h.accounts.Accounts(ctx, userID)
	if err != nil {
		return errorResponse(err), nil
	}
	if accounts == nil {
		accounts = []model.CloudAccount{}
	}
	return jsonResponse(http.StatusOK, accounts), nil
}

// Disconnect revokes and removes an account.
func (h *AccountHandler) Disconnect(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return errorResponse(errUnauthorized), nil
	}
	if err := h.accounts.Disconnect(ctx, userID, req.PathParameters["id"]); err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"success": true}), nil
}

// Browse lists the folders and files under ?parent= (root when empty).
func (h *AccountHandler) Browse(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	accountID := req.PathParameters["id"]
	if _, err := authorize(ctx, req, h.jwtSecret, h.accounts, accountID); err != nil {
		return errorResponse(err), nil
	}
	listing, err := h.browser.List(ctx, accountID, req.QueryStringParameters["parent"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, listing), nil
}
