package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
)

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(&adapter.Credential{Provider: model.ProviderDropbox, AccessToken: "tok"}, srv.URL, srv.URL, srv.Client())
}

func TestAdapter_ListFiles_FollowsCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["path"] != "" {
			t.Errorf("root must be listed as empty path, got %v", req["path"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{".tag": "folder", "name": "Boda", "path_lower": "/boda"},
				{".tag": "file", "name": "A.JPG", "path_lower": "/a.jpg", "size": 12,
					"media_info": map[string]any{"metadata": map[string]any{
						"dimensions": map[string]any{"width": 640, "height": 480}}}},
			},
			"cursor":   "c1",
			"has_more": true,
		})
	})
	mux.HandleFunc("/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["cursor"] != "c1" {
			t.Errorf("cursor = %q", req["cursor"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{".tag": "file", "name": "b.mp4", "path_lower": "/b.mp4", "size": 50},
			},
			"has_more": false,
		})
	})
	a := newTestAdapter(t, mux)

	files, err := a.ListFiles(context.Background(), "")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].ID != "/a.jpg" || files[0].MIMEType != "image/jpeg" || files[0].Width != 640 {
		t.Errorf("unexpected first file: %+v", files[0])
	}
	if files[1].MIMEType != "video/mp4" {
		t.Errorf("unexpected second file MIME: %q", files[1].MIMEType)
	}
}

func TestAdapter_GetFileContent_TemporaryLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/get_temporary_link", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"link": "https://dl.dropboxusercontent.com/x"})
	})
	a := newTestAdapter(t, mux)

	link, err := a.GetFileContent(context.Background(), "/a.jpg")
	if err != nil {
		t.Fatalf("GetFileContent failed: %v", err)
	}
	if link != "https://dl.dropboxusercontent.com/x" {
		t.Errorf("link = %q", link)
	}
}

func TestAdapter_GetFileContent_PathNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/get_temporary_link", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary":"path/not_found/.."}`))
	})
	a := newTestAdapter(t, mux)

	_, err := a.GetFileContent(context.Background(), "/gone.jpg")
	if !errors.Is(err, adapter.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var fe *adapter.ContentFetchError
	if !errors.As(err, &fe) || fe.Provider != model.ProviderDropbox {
		t.Errorf("expected ContentFetchError, got %T", err)
	}
}

func TestAdapter_OpenContent_APIArgAndRange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/download", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Dropbox-API-Arg"); got != `{"path":"/fotos/ni\u00f1o.jpg"}` {
			t.Errorf("Dropbox-API-Arg = %s", got)
		}
		if r.Header.Get("Range") != "bytes=5-" {
			t.Errorf("Range = %q", r.Header.Get("Range"))
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("tail"))
	})
	a := newTestAdapter(t, mux)

	c, err := a.OpenContent(context.Background(), "/fotos/niño.jpg", &adapter.ByteRange{Start: 5, End: -1})
	if err != nil {
		t.Fatalf("OpenContent failed: %v", err)
	}
	defer c.Body.Close()
	b, _ := io.ReadAll(c.Body)
	if string(b) != "tail" {
		t.Errorf("body = %q", b)
	}
}

func TestAPIArg_EscapesSupplementaryRunes(t *testing.T) {
	got, err := apiArg("/😀.jpg")
	if err != nil {
		t.Fatal(err)
	}
	want := `{"path":"/\ud83d\ude00.jpg"}`
	if got != want {
		t.Errorf("apiArg = %s, want %s", got, want)
	}
}

func TestAdapter_GetQuota(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/get_space_usage", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"used": 10, "allocation": map[string]any{".tag": "individual", "allocated": 100}})
	})
	a := newTestAdapter(t, mux)

	q, err := a.GetQuota(context.Background())
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if q.Usage != 10 || q.Limit != 100 {
		t.Errorf("unexpected quota %+v", q)
	}
}

func TestAdapter_Thumbnail_GetThumbnailV2(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/files/get_thumbnail_v2", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		want := `{"resource":{".tag":"path","path":"/boda/v\u00eddeo.mp4"},"size":{".tag":"w480h320"},"format":"jpeg"}`
		if got := r.Header.Get("Dropbox-API-Arg"); got != want {
			t.Errorf("Dropbox-API-Arg = %s", got)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	})
	mux.HandleFunc("/files/download", func(w http.ResponseWriter, r *http.Request) {
		t.Error("thumbnail must not download the original")
	})
	a := newTestAdapter(t, mux)
	ctx := context.Background()

	ref, err := a.ThumbnailURL(ctx, "/boda/vídeo.mp4", 400)
	if err != nil || ref == "" {
		t.Fatalf("ThumbnailURL = %q, %v", ref, err)
	}
	rc, err := a.OpenThumbnail(ctx, ref)
	if err != nil {
		t.Fatalf("OpenThumbnail failed: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "jpeg-bytes" || calls != 1 {
		t.Errorf("body = %q, calls = %d", b, calls)
	}
}

func TestAdapter_OpenThumbnail_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/get_thumbnail_v2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary":"path/not_found/.."}`))
	})
	a := newTestAdapter(t, mux)
	ctx := context.Background()

	if _, err := a.OpenThumbnail(ctx, "https://example.com/thumb.jpg"); !errors.Is(err, adapter.ErrUnsupported) {
		t.Errorf("foreign URL: expected ErrUnsupported, got %v", err)
	}
	ref, _ := a.ThumbnailURL(ctx, "/gone.jpg", 64)
	if _, err := a.OpenThumbnail(ctx, ref); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("missing file: expected ErrNotFound, got %v", err)
	}
}

func TestThumbnailSizeTag(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{1, "w32h32"},
		{64, "w64h64"},
		{200, "w256h256"},
		{400, "w480h320"},
		{1000, "w1024h768"},
		{2048, "w2048h1536"},
		{4000, "w2048h1536"},
	}
	for _, tt := range tests {
		if got := thumbnailSizeTag(tt.size); got != tt.want {
			t.Errorf("thumbnailSizeTag(%d) = %s, want %s", tt.size, got, tt.want)
		}
	}
}
