package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected user agent: %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><title>hello</title></html>"))
	}))
	defer server.Close()

	client := NewClient("test-agent", 0, 0)
	result, err := client.Fetch(context.Background(), server.URL, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.HTTPStatus != 200 {
		t.Errorf("expected 200, got %d", result.HTTPStatus)
	}
	if result.Body == "" {
		t.Error("expected a body")
	}
	if result.Metrics.BytesDownloaded != int64(len(result.Body)) {
		t.Errorf("bytes downloaded %d != body length %d", result.Metrics.BytesDownloaded, len(result.Body))
	}
	if result.Metrics.ContentType == "" {
		t.Error("expected content type to be recorded")
	}
	if result.Metrics.FetchedAt.Before(result.Metrics.RequestStartedAt) {
		t.Error("fetchedAt precedes requestStartedAt")
	}
}

func TestFetchTimeoutMapsTo408(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient("", 0, 0)
	result, err := client.Fetch(context.Background(), server.URL, Options{Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if result.OK {
		t.Fatal("expected failed result")
	}
	if result.HTTPStatus != http.StatusRequestTimeout {
		t.Errorf("expected 408 for timeout, got %d", result.HTTPStatus)
	}
	if result.Error == "" {
		t.Error("expected error message in result")
	}
	if result.FinalURL != server.URL {
		t.Errorf("failed result should keep the input URL, got %q", result.FinalURL)
	}
}

func TestFetchConnectionErrorMapsTo500(t *testing.T) {
	client := NewClient("", 0, 0)
	// Reserved port with nothing listening.
	result, err := client.Fetch(context.Background(), "http://127.0.0.1:1/", Options{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("network failure must not surface as an error: %v", err)
	}
	if result.OK {
		t.Fatal("expected failed result")
	}
	if result.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("expected 500 for transport failure, got %d", result.HTTPStatus)
	}
}

func TestFetchInvalidInput(t *testing.T) {
	client := NewClient("", 0, 0)
	if _, err := client.Fetch(context.Background(), "not a url", Options{}); err == nil {
		t.Error("expected an error for malformed URL")
	}
	if _, err := client.Fetch(context.Background(), "http://example.com/", Options{Method: "DELETE"}); err == nil {
		t.Error("expected an error for unsupported method")
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, server.URL+"/final", http.StatusFound)
			return
		}
		w.Write([]byte("done"))
	}))
	defer server.Close()

	client := NewClient("", 0, 0)
	result, err := client.Fetch(context.Background(), server.URL+"/start", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HTTPStatus != 200 {
		t.Fatalf("expected 200 after redirect, got %d", result.HTTPStatus)
	}
	if result.FinalURL != server.URL+"/final" {
		t.Errorf("expected final URL after redirect, got %q", result.FinalURL)
	}
	if result.Metrics.RedirectCount != 1 {
		t.Errorf("expected 1 redirect, got %d", result.Metrics.RedirectCount)
	}
}

func TestFetchHeadHasNoBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer server.Close()

	client := NewClient("", 0, 0)
	result, err := client.Fetch(context.Background(), server.URL, Options{Method: "HEAD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Body != "" {
		t.Errorf("HEAD result must have empty body, got %q", result.Body)
	}
}

func TestFetchPerHostPoliteness(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient("", 80*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(ctx, server.URL, Options{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 160*time.Millisecond {
		t.Errorf("three same-host requests finished in %v, politeness delay not applied", elapsed)
	}
}

func TestFetchDownloadBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient("", 0, 2)
	ctx := context.Background()

	if client.BudgetExhausted() {
		t.Fatal("budget exhausted before any fetch")
	}
	for i := 0; i < 2; i++ {
		if _, err := client.Fetch(ctx, server.URL, Options{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !client.BudgetExhausted() {
		t.Error("expected budget exhausted after maxDownloads fetches")
	}
	if client.Downloads() != 2 {
		t.Errorf("expected 2 downloads, got %d", client.Downloads())
	}
}
