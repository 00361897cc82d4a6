package handler_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jun/gophgallery/internal/account"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/memory"
	"github.com/jun/gophgallery/internal/auth"
	"github.com/jun/gophgallery/internal/crypto"
	"github.com/jun/gophgallery/internal/gallery"
	"github.com/jun/gophgallery/internal/handler"
	"github.com/jun/gophgallery/internal/lock"
	"github.com/jun/gophgallery/internal/model"
	"github.com/jun/gophgallery/internal/storage"
	"github.com/jun/gophgallery/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	testUserID  = "test-user-123"
	otherUserID = "other-user-456"
	frontendURL = "http://localhost:3000"
)

func makeToken(userID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})
	signed, _ := token.SignedString([]byte(testJWTSecret))
	return signed
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Authorization": "Bearer " + makeToken(testUserID),
			"Content-Type":  "application/json",
		},
		PathParameters:        map[string]string{},
		QueryStringParameters: map[string]string{},
	}
}

// fixture wires the handlers to an in-memory store and one seeded Koofr drive.
type fixture struct {
	auth      *auth.AuthService
	drive     *memory.MemoryAdapter
	accountID string
	transfer  *transfer.Service
	accounts  *handler.AccountHandler
	gallery   *handler.GalleryHandler
	media     *handler.MediaHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	drive := memory.NewMemoryAdapter(model.ProviderKoofr)
	if err := memory.SeedDemoGallery(drive); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	registry := adapter.NewRegistry()
	registry.Register(model.ProviderKoofr, func(ctx context.Context, cred *adapter.Credential) (adapter.StorageAdapter, error) {
		return drive, nil
	})
	registry.Register(model.ProviderGoogle, memory.Factory(nil))

	svc := auth.NewAuthService(account.NewDynamoStore(nil, ""), crypto.NewMockEncryptor(), lock.NewMockLocker(), registry,
		map[model.Provider]*oauth2.Config{
			model.ProviderGoogle: {
				ClientID: "client",
				Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example/auth", TokenURL: "https://accounts.example/token"},
			},
		})
	acc, err := svc.ConnectKoofr(context.Background(), testUserID, "ana@example.com", "app-password")
	if err != nil {
		t.Fatalf("ConnectKoofr failed: %v", err)
	}

	links := gallery.LinkBuilder{BaseURL: "https://api.example"}
	xfer := transfer.NewService(svc, nil, nil)
	return &fixture{
		auth:      svc,
		drive:     drive,
		accountID: acc.ID,
		transfer:  xfer,
		accounts:  handler.NewAccountHandler(svc, storage.NewBrowser(svc), testJWTSecret, frontendURL),
		gallery:   handler.NewGalleryHandler(svc, gallery.NewIndexer(svc, links), testJWTSecret),
		media:     handler.NewMediaHandler(svc, xfer, svc, links, testJWTSecret),
	}
}

// find returns the id of the first node called name under parentID.
func (f *fixture) find(t *testing.T, parentID, name string) string {
	t.Helper()
	ctx := context.Background()
	folders, _ := f.drive.ListFolders(ctx, parentID)
	for _, d := range folders {
		if d.Name == name {
			return d.ID
		}
	}
	files, _ := f.drive.ListFiles(ctx, parentID)
	for _, fl := range files {
		if fl.Name == name {
			return fl.ID
		}
	}
	t.Fatalf("%s not found under %q", name, parentID)
	return ""
}

func decodeBody(t *testing.T, resp events.APIGatewayProxyResponse) []byte {
	t.Helper()
	if !resp.IsBase64Encoded {
		t.Fatalf("expected base64 body, got %q", resp.Body)
	}
	b, err := base64.StdEncoding.DecodeString(resp.Body)
	if err != nil {
		t.Fatalf("invalid base64 body: %v", err)
	}
	return b
}
