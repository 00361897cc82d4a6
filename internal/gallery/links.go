package gallery

import (
	"net/url"
	"strconv"
	"strings"
)

// LinkBuilder renders the API references placed in MediaItem.URL and Thumbnail.
// Provider URLs are never exposed; clients always come back through the media routes.
type LinkBuilder struct {
	BaseURL string
}

func (b LinkBuilder) build(path string, q url.Values) string {
	return strings.TrimRight(b.BaseURL, "/") + path + "?" + q.Encode()
}

// Stream returns the range-capable streaming reference for a file.
func (b LinkBuilder) Stream(accountID, fileID string) string {
	return b.build("/api/media/stream", url.Values{"account": {accountID}, "file": {fileID}})
}

// Download returns the attachment download reference for a file.
func (b LinkBuilder) Download(accountID, fileID string) string {
	return b.build("/api/media/download", url.Values{"account": {accountID}, "file": {fileID}})
}

// Thumbnail returns the thumbnail reference for a file at size pixels.
func (b LinkBuilder) Thumbnail(accountID, fileID string, size int) string {
	return b.build("/api/media/thumbnail", url.Values{
		"account": {accountID},
		"file":    {fileID},
		"size":    {strconv.Itoa(size)},
	})
}
