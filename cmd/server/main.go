package main

import (
	"context"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/jun/gophgallery/internal/app"
	"github.com/jun/gophgallery/internal/config"
	"github.com/jun/gophgallery/internal/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()
	application := app.NewApp(context.Background())

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	go func() {
		for range time.Tick(time.Minute) {
			limiter.Cleanup(3 * time.Minute)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(limiter.Middleware())
	e.Any("/*", func(c echo.Context) error {
		req, err := toProxyRequest(c.Request())
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		resp, err := application.HandleRequest(c.Request().Context(), req)
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return writeResponse(c.Response(), resp)
	})

	log.Printf("Starting local server on :%s", cfg.ServerPort)
	log.Fatal(e.Start(":" + cfg.ServerPort))
}

// toProxyRequest translates a local HTTP request into the API Gateway shape the
// Lambda handler expects.
func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	headers := make(map[string]string)
	for k, v := range r.Header {
		headers[k] = v[0]
	}

	queryParams := make(map[string]string)
	for k, v := range r.URL.Query() {
		queryParams[k] = v[0]
	}

	return events.APIGatewayProxyRequest{
		Path:                  r.URL.Path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		QueryStringParameters: queryParams,
		Body:                  string(body),
	}, nil
}

// writeResponse writes resp to w, decoding base64 bodies.
func writeResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) error {
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			return err
		}
		body = decoded
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, err := w.Write(body)
	return err
}
