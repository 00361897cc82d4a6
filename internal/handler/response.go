package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/auth"
	"github.com/jun/gophgallery/internal/transfer"
)

// errorBody is the JSON error payload. Code lets the frontend show a reconnect prompt.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Handler] failed to encode response: %v", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// binaryResponse returns data base64-encoded, as API Gateway requires for binary bodies.
func binaryResponse(status int, headers map[string]string, data []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode:      status,
		Headers:         headers,
		Body:            base64.StdEncoding.EncodeToString(data),
		IsBase64Encoded: true,
	}
}

// errorResponse maps an error to its HTTP status.
func errorResponse(err error) events.APIGatewayProxyResponse {
	var (
		ve  *transfer.ValidationError
		re  *transfer.RangeError
		se  *transfer.SizeError
		fe  *adapter.ContentFetchError
		rfe *auth.RefreshError
	)
	switch {
	case errors.Is(err, errUnauthorized):
		return jsonResponse(http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
	case errors.As(err, &ve):
		return jsonResponse(http.StatusBadRequest, errorBody{Error: ve.Error(), Code: "VALIDATION_ERROR"})
	case errors.As(err, &re):
		resp := jsonResponse(http.StatusRequestedRangeNotSatisfiable, errorBody{Error: "Range Not Satisfiable"})
		resp.Headers["Content-Range"] = fmt.Sprintf("bytes */%d", re.Size)
		return resp
	case errors.As(err, &se):
		return jsonResponse(http.StatusRequestEntityTooLarge, errorBody{Error: se.Error(), Code: "FILE_TOO_LARGE"})
	case errors.Is(err, auth.ErrAccountNotFound):
		return jsonResponse(http.StatusNotFound, errorBody{Error: "Account not found", Code: "ACCOUNT_NOT_FOUND"})
	case errors.Is(err, auth.ErrReauthRequired):
		return jsonResponse(http.StatusUnauthorized, errorBody{Error: "The storage account must be reconnected", Code: "REAUTH_REQUIRED"})
	case errors.As(err, &rfe):
		log.Printf("[Handler] %v", err)
		return jsonResponse(http.StatusUnauthorized, errorBody{Error: "Could not refresh the storage account authorization", Code: "REFRESH_FAILED"})
	case errors.Is(err, adapter.ErrNotFound):
		return jsonResponse(http.StatusNotFound, errorBody{Error: "File not found"})
	case errors.Is(err, transfer.ErrNoThumbnail):
		return jsonResponse(http.StatusNotFound, errorBody{Error: "No thumbnail available"})
	case errors.As(err, &fe):
		log.Printf("[Handler] %v", err)
		return jsonResponse(http.StatusBadGateway, errorBody{Error: "Failed to fetch content from " + string(fe.Provider), Code: "CONTENT_FETCH_FAILED"})
	case errors.Is(err, adapter.ErrUnsupported):
		return jsonResponse(http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		log.Printf("[Handler] unexpected error: %v", err)
		return jsonResponse(http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
	}
}
