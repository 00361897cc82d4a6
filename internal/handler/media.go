package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/gallery"
	"github.com/jun/gophgallery/internal/transfer"
)

const (
	// maxArchiveBody caps the JSON body of an archive request.
	maxArchiveBody = 256 << 10
	// archiveEntryOverhead bounds the zip header and placeholder bytes of one entry.
	archiveEntryOverhead = 4 << 10
)

// MediaHandler serves file bytes: downloads, archives, ranged streams and thumbnails.
type MediaHandler struct {
	owner     accountOwner
	transfer  *transfer.Service
	provider  adapter.StorageProvider
	links     gallery.LinkBuilder
	jwtSecret string
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(owner accountOwner, svc *transfer.Service, provider adapter.StorageProvider, links gallery.LinkBuilder, jwtSecret string) *MediaHandler {
	return &MediaHandler{owner: owner, transfer: svc, provider: provider, links: links, jwtSecret: jwtSecret}
}

func (h *MediaHandler) fileParams(ctx context.Context, req events.APIGatewayProxyRequest) (string, string, error) {
	accountID := req.QueryStringParameters["account"]
	fileID := req.QueryStringParameters["file"]
	if _, err := authorize(ctx, req, h.jwtSecret, h.owner, accountID); err != nil {
		return "", "", err
	}
	if fileID == "" {
		return "", "", &transfer.ValidationError{Field: "file", Message: "is required"}
	}
	return accountID, fileID, nil
}

// Download returns one file as an attachment.
func (h *MediaHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	accountID, fileID, err := h.fileParams(ctx, req)
	if err != nil {
		return errorResponse(err), nil
	}
	d, err := h.transfer.DownloadFile(ctx, accountID, fileID)
	if err != nil {
		return errorResponse(err), nil
	}
	return downloadResponse(d, h.transfer.MaxFileSize)
}

// Archive returns the requested files as a zip, or the single file itself.
func (h *MediaHandler) Archive(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if len(req.Body) > maxArchiveBody {
		return errorResponse(&transfer.ValidationError{Field: "body", Message: "too large"}), nil
	}
	var body struct {
		AccountID string   `json:"accountId"`
		FileIDs   []string `json:"fileIds"`
		Name      string   `json:"name"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(&transfer.ValidationError{Field: "body", Message: "malformed file list"}), nil
	}
	if _, err := authorize(ctx, req, h.jwtSecret, h.owner, body.AccountID); err != nil {
		return errorResponse(err), nil
	}
	d, err := h.transfer.DownloadArchive(ctx, body.AccountID, body.FileIDs, body.Name)
	if err != nil {
		return errorResponse(err), nil
	}
	// Zip headers and error placeholders come on top of the entry budget.
	overhead := int64(h.transfer.MaxArchiveFiles) * archiveEntryOverhead
	return downloadResponse(d, h.transfer.MaxFileSize+overhead)
}

func downloadResponse(d *transfer.Download, limit int64) (events.APIGatewayProxyResponse, error) {
	defer d.Body.Close()
	data, err := readBounded(d.Body, limit)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to read %s: %w", d.Filename, err)), nil
	}
	return binaryResponse(http.StatusOK, map[string]string{
		"Content-Type":        d.MIMEType,
		"Content-Length":      strconv.Itoa(len(data)),
		"Content-Disposition": transfer.ContentDisposition(d.Filename),
		"Cache-Control":       "private, no-store",
	}, data), nil
}

// readBounded reads r fully, failing with a *transfer.SizeError past limit bytes.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &transfer.SizeError{Limit: limit}
	}
	return data, nil
}

// Stream serves a file inline, honoring the Range header.
func (h *MediaHandler) Stream(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	accountID, fileID, err := h.fileParams(ctx, req)
	if err != nil {
		return errorResponse(err), nil
	}
	s, err := h.transfer.StreamRange(ctx, accountID, fileID, header(req, "Range"))
	if err != nil {
		return errorResponse(err), nil
	}
	defer s.Body.Close()
	data, err := readBounded(s.Body, h.transfer.MaxFileSize)
	if err != nil {
		return errorResponse(adapter.FetchError("", fileID, err)), nil
	}
	headers := s.Headers()
	headers["Content-Length"] = strconv.Itoa(len(data))
	headers["Cache-Control"] = "private, max-age=300"
	return binaryResponse(s.Status, headers, data), nil
}

// Thumbnail serves a JPEG or provider-native preview image.
func (h *MediaHandler) Thumbnail(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	accountID, fileID, err := h.fileParams(ctx, req)
	if err != nil {
		return errorResponse(err), nil
	}
	size := 0
	if v := req.QueryStringParameters["size"]; v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			return errorResponse(&transfer.ValidationError{Field: "size", Message: "must be an integer"}), nil
		}
	}
	th, err := h.transfer.ResolveThumbnail(ctx, accountID, fileID, size)
	if err != nil {
		return errorResponse(err), nil
	}
	return binaryResponse(http.StatusOK, map[string]string{
		"Content-Type":  th.MIMEType,
		"Cache-Control": "private, max-age=3600",
	}, th.Data), nil
}

// ContentLink returns a short-lived direct URL for the file when the provider has
// one, and the API download reference otherwise.
func (h *MediaHandler) ContentLink(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	accountID, fileID, err := h.fileParams(ctx, req)
	if err != nil {
		return errorResponse(err), nil
	}
	ad, err := h.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return errorResponse(err), nil
	}
	link, err := ad.GetFileContent(ctx, fileID)
	if err != nil {
		return errorResponse(adapter.FetchError(ad.Provider(), fileID, err)), nil
	}
	direct := link != ""
	if !direct {
		link = h.links.Download(accountID, fileID)
	}
	return jsonResponse(http.StatusOK, map[string]any{"url": link, "direct": direct}), nil
}
