package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jun/gophgallery/internal/model"
	"github.com/jun/gophgallery/internal/transfer"
)

// errUnauthorized is returned when a request carries no valid session.
var errUnauthorized = errors.New("unauthorized")

// stateTTL bounds how long an OAuth consent round trip may take.
const stateTTL = 10 * time.Minute

// header looks up a request header case-insensitively.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// GetUserID extracts the user ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	// 1. Check Authorization Header (Bearer <token>)
	tokenString := ""
	if authHeader := header(req, "Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check Cookie
	if tokenString == "" {
		for _, part := range strings.Split(header(req, "Cookie"), ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "session_token=") {
				tokenString = strings.TrimPrefix(part, "session_token=")
				break
			}
		}
	}

	if tokenString == "" {
		return "", fmt.Errorf("no authorization token found")
	}

	claims, err := parseToken(tokenString, jwtSecret)
	if err != nil {
		return "", err
	}
	// OAuth state tokens are not sessions.
	if typ, _ := claims["typ"].(string); typ != "" {
		return "", fmt.Errorf("invalid token claims")
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("invalid token claims")
}

func parseToken(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// signState creates the OAuth state parameter binding a consent round trip to the
// user and provider that started it.
func signState(userID string, p model.Provider, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"prv": string(p),
		"typ": "oauth_state",
		"exp": time.Now().Add(stateTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

// verifyState returns the user that started the consent for p.
func verifyState(state string, p model.Provider, jwtSecret string) (string, error) {
	claims, err := parseToken(state, jwtSecret)
	if err != nil {
		return "", err
	}
	typ, _ := claims["typ"].(string)
	prv, _ := claims["prv"].(string)
	sub, _ := claims["sub"].(string)
	if typ != "oauth_state" || prv != string(p) || sub == "" {
		return "", fmt.Errorf("state does not match provider %s", p)
	}
	return sub, nil
}

// accountOwner checks that an account belongs to a user.
type accountOwner interface {
	Account(ctx context.Context, userID, accountID string) (*model.CloudAccount, error)
}

// authorize resolves the session user and checks ownership of accountID.
func authorize(ctx context.Context, req events.APIGatewayProxyRequest, jwtSecret string, owner accountOwner, accountID string) (string, error) {
	userID, err := GetUserID(req, jwtSecret)
	if err != nil {
		return "", errUnauthorized
	}
	if accountID == "" {
		return "", &transfer.ValidationError{Field: "account", Message: "is required"}
	}
	if _, err := owner.Account(ctx, userID, accountID); err != nil {
		return "", err
	}
	return userID, nil
}
