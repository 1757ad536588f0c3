package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch_KnownToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") != "0xabc" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"code":0,"data":{"image":"https://img/x.png","webUrl":"https://x.io","twitterUrl":"https://x.com/x","telegramUrl":""}}`))
	}))
	defer srv.Close()

	meta, err := NewClient(srv.URL).Fetch(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if meta == nil {
		t.Fatal("Fetch returned nil metadata")
	}
	if meta.Image != "https://img/x.png" || meta.Website != "https://x.io" || meta.Twitter != "https://x.com/x" {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Empty() {
		t.Error("metadata reported empty")
	}
}

func TestFetch_UnknownTokenIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":1,"data":null}`))
	}))
	defer srv.Close()

	meta, err := NewClient(srv.URL).Fetch(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want nil for unknown token", meta)
	}
}

func TestFetch_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Fetch(context.Background(), "0xabc"); err == nil {
		t.Error("server error did not propagate")
	}
}
