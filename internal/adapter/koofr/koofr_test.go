package koofr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
)

func newTestServer(t *testing.T, mountCalls *int32) (*httptest.Server, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/mounts", func(w http.ResponseWriter, r *http.Request) {
		if mountCalls != nil {
			atomic.AddInt32(mountCalls, 1)
		}
		u, p, ok := r.BasicAuth()
		if !ok || u != "me@example.com" || p != "app-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"mounts": []map[string]any{
			{"id": "m-shared", "isPrimary": false, "spaceTotal": 1, "spaceUsed": 1},
			{"id": "m1", "isPrimary": true, "spaceTotal": 10240, "spaceUsed": 512},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mux
}

func newAdapter(srv *httptest.Server, password string) *Adapter {
	return New(&adapter.Credential{Provider: model.ProviderKoofr, Username: "me@example.com", Password: password}, srv.URL, srv.Client())
}

func TestAdapter_ListFolders_UsesFullPathIDs(t *testing.T) {
	var mountCalls int32
	srv, mux := newTestServer(t, &mountCalls)
	mux.HandleFunc("/api/v2/mounts/m1/files/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"files": []map[string]any{
			{"name": "Ceremonia", "type": "dir"},
			{"name": "a.jpg", "type": "file", "size": 3, "contentType": "image/jpeg", "modified": 1700000000000},
		}})
	})
	a := newAdapter(srv, "app-pass")

	folders, err := a.ListFolders(context.Background(), "/Boda")
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	if len(folders) != 1 || folders[0].ID != "/Boda/Ceremonia" {
		t.Errorf("unexpected folders: %+v", folders)
	}
	files, err := a.ListFiles(context.Background(), "/Boda")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].ID != "/Boda/a.jpg" || files[0].ModifiedTime.IsZero() {
		t.Errorf("unexpected files: %+v", files)
	}
	if n := atomic.LoadInt32(&mountCalls); n != 1 {
		t.Errorf("expected primary mount to be cached, got %d lookups", n)
	}
}

func TestAdapter_GetQuota_ConvertsMegabytes(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	q, err := newAdapter(srv, "app-pass").GetQuota(context.Background())
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if q.Limit != 10240*bytesPerMB || q.Usage != 512*bytesPerMB {
		t.Errorf("unexpected quota %+v", q)
	}
}

func TestAdapter_GetQuota_BadCredentialsSurface(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, err := newAdapter(srv, "wrong").GetQuota(context.Background())
	var se *adapter.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}

func TestAdapter_GetFileContent_IsAuthenticatedAPIURL(t *testing.T) {
	srv, mux := newTestServer(t, nil)
	mux.HandleFunc("/content/api/v2/mounts/m1/files/get", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("path") != "/Boda/a b.jpg" {
			t.Errorf("path = %q", r.URL.Query().Get("path"))
		}
		w.Write([]byte("jpeg-bytes"))
	})
	a := newAdapter(srv, "app-pass")

	u, err := a.GetFileContent(context.Background(), "/Boda/a b.jpg")
	if err != nil {
		t.Fatalf("GetFileContent failed: %v", err)
	}
	if !strings.HasPrefix(u, srv.URL+"/content/api/v2/mounts/m1/files/get?path=") {
		t.Errorf("unexpected url %q", u)
	}
	resp, err := http.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("plain fetch should be rejected, got %d", resp.StatusCode)
	}

	c, err := a.OpenContent(context.Background(), "/Boda/a b.jpg", nil)
	if err != nil {
		t.Fatalf("OpenContent failed: %v", err)
	}
	defer c.Body.Close()
	b, _ := io.ReadAll(c.Body)
	if string(b) != "jpeg-bytes" || c.MIMEType != "image/jpeg" {
		t.Errorf("got %q (%s)", b, c.MIMEType)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"":          "/",
		"root":      "/",
		"/":         "/",
		"Boda":      "/Boda",
		"/Boda/":    "/Boda",
		"/a/../b/c": "/b/c",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
