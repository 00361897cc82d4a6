package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/oauth2"

	"github.com/jun/gophgallery/internal/account"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/adapter/dropbox"
	"github.com/jun/gophgallery/internal/adapter/googledrive"
	"github.com/jun/gophgallery/internal/adapter/graph"
	"github.com/jun/gophgallery/internal/adapter/koofr"
	"github.com/jun/gophgallery/internal/adapter/memory"
	"github.com/jun/gophgallery/internal/adapter/transport"
	"github.com/jun/gophgallery/internal/auth"
	"github.com/jun/gophgallery/internal/cache"
	"github.com/jun/gophgallery/internal/config"
	"github.com/jun/gophgallery/internal/crypto"
	"github.com/jun/gophgallery/internal/gallery"
	"github.com/jun/gophgallery/internal/handler"
	"github.com/jun/gophgallery/internal/lock"
	"github.com/jun/gophgallery/internal/model"
	"github.com/jun/gophgallery/internal/secret"
	"github.com/jun/gophgallery/internal/storage"
	"github.com/jun/gophgallery/internal/transfer"
)

// Services are the wired dependencies the routes need.
type Services struct {
	Auth             *auth.AuthService
	Transfer         *transfer.Service
	Indexer          *gallery.Indexer
	Links            gallery.LinkBuilder
	JWTSecret        string
	APIGatewaySecret string
}

// App holds the dependencies for the Lambda function.
type App struct {
	cfg              *config.Config
	accountHandler   *handler.AccountHandler
	galleryHandler   *handler.GalleryHandler
	mediaHandler     *handler.MediaHandler
	apiGatewaySecret string
}

// New builds an App from already-wired services.
func New(cfg *config.Config, s Services) *App {
	return &App{
		cfg:              cfg,
		accountHandler:   handler.NewAccountHandler(s.Auth, storage.NewBrowser(s.Auth), s.JWTSecret, cfg.FrontendURL),
		galleryHandler:   handler.NewGalleryHandler(s.Auth, s.Indexer, s.JWTSecret),
		mediaHandler:     handler.NewMediaHandler(s.Auth, s.Transfer, s.Auth, s.Links, s.JWTSecret),
		apiGatewaySecret: s.APIGatewaySecret,
	}
}

// NewApp initializes the application dependencies from the environment.
func NewApp(ctx context.Context) *App {
	cfg := config.Load()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		panic(fmt.Sprintf("unable to load SDK config, %v", err))
	}

	// ---------- Secret Resolver ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		log.Println("Using EnvResolver (DEV_MODE=true)")
	} else {
		ssmResolver := secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
		if err := ssmResolver.Prefetch(ctx, secretParams(cfg)...); err != nil {
			log.Printf("WARNING: failed to prefetch SSM parameters: %v", err)
		}
		resolver = secret.NewChainResolver(ssmResolver, secret.NewEnvResolver())
		log.Println("Using SSMResolver (SSM Parameter Store) with env fallback")
	}

	jwtSecret, err := resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		log.Printf("WARNING: failed to resolve JWT_SECRET: %v", err)
		jwtSecret = "default-dev-secret"
	}
	apiGatewaySecret, err := resolver.GetSecret(ctx, cfg.APIGatewaySecretParam)
	if err != nil {
		log.Printf("WARNING: failed to resolve API_GATEWAY_SECRET: %v", err)
	}
	if apiGatewaySecret == "" && !cfg.DevMode {
		log.Printf("WARNING: API_GATEWAY_SECRET is empty; all non-preflight requests will be rejected")
	}

	// ---------- Credential Store, Encryption, Refresh Lock ----------
	var (
		store  account.Store
		enc    crypto.Encryptor
		locker lock.Locker
	)
	if cfg.DevMode {
		store = account.NewDynamoStore(nil, cfg.AccountsTable)
		enc = crypto.NewMockEncryptor()
		locker = lock.NewMockLocker()
		log.Println("Using in-memory account store, MockEncryptor and MockLocker (DEV_MODE=true)")
	} else {
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		store = account.NewDynamoStore(dynamoClient, cfg.AccountsTable)
		enc = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
		locker = lock.NewLeaseManager(dynamoClient, cfg.LocksTable)
	}

	// ---------- OAuth2 Configs ----------
	configs := make(map[model.Provider]*oauth2.Config)
	for p, clientID := range cfg.ClientIDs {
		if clientID == "" {
			continue
		}
		clientSecret, err := resolver.GetSecret(ctx, cfg.ClientSecretParams[p])
		if err != nil {
			log.Printf("WARNING: failed to resolve %s client secret: %v", p, err)
		}
		configs[p] = auth.NewOAuthConfig(p, auth.ClientCredentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  cfg.RedirectURL(p),
		})
	}

	// ---------- Adapters ----------
	httpClient := transport.NewHTTPClient()
	registry := adapter.NewRegistry()
	registry.CallTimeout = cfg.ProviderCallTimeout
	if cfg.DevMode {
		demo := memory.Factory(memory.SeedDemoGallery)
		for _, p := range []model.Provider{model.ProviderGoogle, model.ProviderMicrosoft, model.ProviderDropbox, model.ProviderKoofr} {
			registry.Register(p, demo)
		}
		log.Println("Using demo memory drives for every provider (DEV_MODE=true)")
	} else {
		registry.Register(model.ProviderGoogle, googledrive.Factory())
		registry.Register(model.ProviderMicrosoft, graph.Factory(graph.DefaultBaseURL, httpClient))
		registry.Register(model.ProviderDropbox, dropbox.Factory(dropbox.DefaultAPIURL, dropbox.DefaultContentURL, httpClient))
		registry.Register(model.ProviderKoofr, koofr.Factory(koofr.DefaultBaseURL, httpClient))
	}

	authService := auth.NewAuthService(store, enc, locker, registry, configs)
	authService.SafetyMargin = cfg.RefreshMargin
	authService.LockWait = cfg.LockWait
	authService.HTTPClient = httpClient

	// ---------- Thumbnail Cache ----------
	var thumbCache cache.Cache
	if cfg.RedisAddr != "" {
		thumbCache = cache.NewRedisCache(cfg.RedisAddr, secret.GetOptional(ctx, resolver, cfg.RedisPasswordParam), "gophgallery:")
		log.Printf("Using Redis thumbnail cache at %s", cfg.RedisAddr)
	}

	links := gallery.LinkBuilder{BaseURL: cfg.PublicBaseURL}
	return New(cfg, Services{
		Auth:             authService,
		Transfer:         transfer.NewService(authService, thumbCache, httpClient),
		Indexer:          gallery.NewIndexer(authService, links),
		Links:            links,
		JWTSecret:        jwtSecret,
		APIGatewaySecret: apiGatewaySecret,
	})
}

// secretParams lists every parameter NewApp resolves at startup.
func secretParams(cfg *config.Config) []string {
	names := []string{cfg.JWTSecretParam, cfg.APIGatewaySecretParam}
	for p, clientID := range cfg.ClientIDs {
		if clientID != "" {
			names = append(names, cfg.ClientSecretParams[p])
		}
	}
	if cfg.RedisAddr != "" {
		names = append(names, cfg.RedisPasswordParam)
	}
	return names
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	log.Printf("Request: %s %s", method, path)

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Security: Verify Request Origin (CloudFront only)
	if !app.cfg.DevMode {
		if !app.originVerified(req.Headers) {
			log.Printf("Security Block: Missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path = strings.TrimPrefix(path, "/api")

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}
	if req.QueryStringParameters == nil {
		req.QueryStringParameters = make(map[string]string)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	// /accounts
	case path == "/accounts" && method == http.MethodGet:
		return app.corsResponse(must(app.accountHandler.List(ctx, req))), nil
	case path == "/accounts/koofr" && method == http.MethodPost:
		return app.corsResponse(must(app.accountHandler.ConnectKoofr(ctx, req))), nil
	case len(parts) == 3 && parts[0] == "accounts" && parts[2] == "login" && method == http.MethodGet:
		req.PathParameters["provider"] = parts[1]
		return app.corsResponse(must(app.accountHandler.Login(ctx, req))), nil
	case len(parts) == 3 && parts[0] == "accounts" && parts[2] == "callback" && method == http.MethodGet:
		req.PathParameters["provider"] = parts[1]
		return app.corsResponse(must(app.accountHandler.Callback(ctx, req))), nil
	case len(parts) == 3 && parts[0] == "accounts" && parts[2] == "folders" && method == http.MethodGet:
		req.PathParameters["id"] = parts[1]
		return app.corsResponse(must(app.accountHandler.Browse(ctx, req))), nil
	case len(parts) == 2 && parts[0] == "accounts" && method == http.MethodDelete:
		req.PathParameters["id"] = parts[1]
		return app.corsResponse(must(app.accountHandler.Disconnect(ctx, req))), nil

	// /gallery
	case path == "/gallery/index" && method == http.MethodPost:
		return app.corsResponse(must(app.galleryHandler.Index(ctx, req))), nil

	// /media
	case path == "/media/download" && method == http.MethodGet:
		return app.corsResponse(must(app.mediaHandler.Download(ctx, req))), nil
	case path == "/media/archive" && method == http.MethodPost:
		return app.corsResponse(must(app.mediaHandler.Archive(ctx, req))), nil
	case path == "/media/stream" && method == http.MethodGet:
		return app.corsResponse(must(app.mediaHandler.Stream(ctx, req))), nil
	case path == "/media/thumbnail" && method == http.MethodGet:
		return app.corsResponse(must(app.mediaHandler.Thumbnail(ctx, req))), nil
	case path == "/media/link" && method == http.MethodGet:
		return app.corsResponse(must(app.mediaHandler.ContentLink(ctx, req))), nil
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
// originVerified reports whether headers carry the shared origin secret. An unset
// secret verifies nothing.
func (app *App) originVerified(headers map[string]string) bool {
	if app.apiGatewaySecret == "" {
		return false
	}
	return headers["X-Origin-Verify"] == app.apiGatewaySecret || headers["x-origin-verify"] == app.apiGatewaySecret
}

func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.cfg.FrontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,Range"
	resp.Headers["Access-Control-Expose-Headers"] = "Content-Range,Content-Length,Content-Disposition,Accept-Ranges"
	return resp
}

// must unwraps a handler response, turning an error into a 500.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		log.Printf("Handler error: %v", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
