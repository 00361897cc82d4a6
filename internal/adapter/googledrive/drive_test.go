package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
	"google.golang.org/api/option"
)

func TestResizeThumbnailLink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		size int
		want string
	}{
		{"rewrites size suffix", "https://lh3.googleusercontent.com/abc=s220", 800, "https://lh3.googleusercontent.com/abc=s800"},
		{"rewrites suffix with crop flag", "https://lh3.googleusercontent.com/abc=s220-c", 400, "https://lh3.googleusercontent.com/abc=s400"},
		{"appends to bare cdn link", "https://lh3.googleusercontent.com/abc", 400, "https://lh3.googleusercontent.com/abc=s400"},
		{"leaves unknown hosts", "https://example.com/thumb.jpg", 400, "https://example.com/thumb.jpg"},
		{"zero size is a no-op", "https://lh3.googleusercontent.com/abc=s220", 0, "https://lh3.googleusercontent.com/abc=s220"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resizeThumbnailLink(tt.in, tt.size); got != tt.want {
				t.Errorf("resizeThumbnailLink(%q, %d) = %q, want %q", tt.in, tt.size, got, tt.want)
			}
		})
	}
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"it's", `it\'s`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeQuery(tt.in); got != tt.want {
			t.Errorf("escapeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTargetFolder(t *testing.T) {
	for _, in := range []string{"", "/", "root"} {
		if got := targetFolder(in); got != "root" {
			t.Errorf("targetFolder(%q) = %q, want root", in, got)
		}
	}
	if got := targetFolder("abc"); got != "abc" {
		t.Errorf("targetFolder(abc) = %q", got)
	}
}

func newTestAdapter(t *testing.T, h http.HandlerFunc) *DriveAdapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	d, err := NewDriveAdapter(context.Background(),
		&adapter.Credential{Provider: model.ProviderGoogle, AccessToken: "tok"},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewDriveAdapter failed: %v", err)
	}
	return d
}

func TestDriveAdapter_ListFiles_FollowsPages(t *testing.T) {
	calls := 0
	d := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)
			return
		}
		calls++
		if !strings.Contains(r.URL.Query().Get("q"), "'folder1' in parents") {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "p2",
				"files": []map[string]any{
					{"id": "f1", "name": "a.jpg", "mimeType": "image/jpeg", "size": "10",
						"imageMediaMetadata": map[string]any{"width": 4000, "height": 3000}},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"id": "f2", "name": "b.mov", "mimeType": "application/octet-stream", "size": "20"},
			},
		})
	})

	files, err := d.ListFiles(context.Background(), "folder1")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 page requests, got %d", calls)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Width != 4000 || files[0].Size != 10 {
		t.Errorf("unexpected first file: %+v", files[0])
	}
	if files[1].MIMEType != "video/quicktime" {
		t.Errorf("expected MIME inferred from extension, got %q", files[1].MIMEType)
	}
}

func TestDriveAdapter_GetFile_NotFound(t *testing.T) {
	d := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
	})

	_, err := d.GetFile(context.Background(), "missing")
	if !errors.Is(err, adapter.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDriveAdapter_OpenContent_ForwardsRange(t *testing.T) {
	d := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("expected alt=media, got %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Range"); got != "bytes=2-4" {
			t.Errorf("Range = %q, want bytes=2-4", got)
		}
		w.Header().Set("Content-Range", "bytes 2-4/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("cde"))
	})

	c, err := d.OpenContent(context.Background(), "f1", &adapter.ByteRange{Start: 2, End: 4})
	if err != nil {
		t.Fatalf("OpenContent failed: %v", err)
	}
	defer c.Body.Close()
	b, _ := io.ReadAll(c.Body)
	if string(b) != "cde" || !c.Partial {
		t.Errorf("got body %q partial=%v", b, c.Partial)
	}
}

func TestDriveAdapter_GetFileContent_NotURLBased(t *testing.T) {
	d := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("GetFileContent must not call the API")
	})
	u, err := d.GetFileContent(context.Background(), "f1")
	if err != nil || u != "" {
		t.Errorf("GetFileContent = %q, %v; want empty", u, err)
	}
}
