package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/gophgallery/internal/gallery"
	"github.com/jun/gophgallery/internal/model"
)

// GalleryHandler builds gallery structures from a connected account's folders.
type GalleryHandler struct {
	owner     accountOwner
	indexer   *gallery.Indexer
	jwtSecret string
}

// NewGalleryHandler creates a new GalleryHandler.
func NewGalleryHandler(owner accountOwner, indexer *gallery.Indexer, jwtSecret string) *GalleryHandler {
	return &GalleryHandler{owner: owner, indexer: indexer, jwtSecret: jwtSecret}
}

type indexRequest struct {
	AccountID    string              `json:"accountId"`
	RootFolderID string              `json:"rootFolderId"`
	Config       model.GalleryConfig `json:"config"`
}

// Index returns the GalleryStructure for the requested root folder.
func (h *GalleryHandler) Index(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body indexRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "Invalid request body"}), nil
	}
	if _, err := authorize(ctx, req, h.jwtSecret, h.owner, body.AccountID); err != nil {
		return errorResponse(err), nil
	}
	if body.RootFolderID == "" {
		return jsonResponse(http.StatusBadRequest, errorBody{Error: "rootFolderId is required", Code: "VALIDATION_ERROR"}), nil
	}

	gs, err := h.indexer.IndexGallery(ctx, body.AccountID, body.RootFolderID, body.Config)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, gs), nil
}
