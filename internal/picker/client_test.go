package picker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"carousel/internal/picker"
	"carousel/internal/services"
	"carousel/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *picker.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithPicker(server.URL, "token-123"))
	client := picker.NewClient(cfg, nil)
	if client == nil {
		t.Fatal("expected configured client")
	}
	return client
}

func TestNewClientReturnsNilWithoutBaseURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if client := picker.NewClient(cfg, nil); client != nil {
		t.Fatal("expected nil client when picker.base_url is empty")
	}
}

func TestSessionItemsFollowsPagination(t *testing.T) {
	var sawToken string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if r.URL.Path != "/v1/sessions/sess-1/items" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		switch r.URL.Query().Get("page_token") {
		case "":
			fmt.Fprint(w, `{"items":[{"id":"a","file_name":"a.mkv","byte_size":10}],"next_page_token":"p2"}`)
		case "p2":
			sawToken = "p2"
			fmt.Fprint(w, `{"items":[{"id":"b","file_name":"b.mkv","byte_size":20}]}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("page_token"))
		}
	}))

	items, err := client.SessionItems(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("SessionItems: %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Fatalf("unexpected items %+v", items)
	}
	if sawToken != "p2" {
		t.Fatal("expected second page to be requested")
	}
}

func TestSessionItemsMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrAuth},
		{http.StatusForbidden, services.ErrAuth},
		{http.StatusNotFound, services.ErrExpired},
		{http.StatusGone, services.ErrExpired},
		{http.StatusInternalServerError, services.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			_, err := client.SessionItems(context.Background(), "sess-1")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v for status %d, got %v", tc.marker, tc.status, err)
			}
		})
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/sess-1/items/item-7/content" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, "payload-bytes")
	}))

	body, err := client.Download(context.Background(), "sess-1", "item-7")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "payload-bytes" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestDownloadGoneIsExpired(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	if _, err := client.Download(context.Background(), "sess-1", "item-7"); !errors.Is(err, services.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDisplayTitle(t *testing.T) {
	cases := map[string]string{
		"vacation_photos-2019.final.mkv": "Vacation Photos 2019 Final",
		"img 0001.jpg":                   "Img 0001",
		"...":                            "Untitled",
	}
	for in, want := range cases {
		if got := picker.DisplayTitle(in); got != want {
			t.Errorf("DisplayTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
