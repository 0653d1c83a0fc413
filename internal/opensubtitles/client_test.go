package opensubtitles

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"subselect/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{APIKey: "abc", UserAgent: "subselect/test", BaseURL: server.URL, VIPBaseURL: server.URL + "/vip"})
	if err != nil {
		t.Fatalf("New client failed: %v", err)
	}
	return client, server
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestSearchBuildsQueryAndParsesResponse(t *testing.T) {
	var captured *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_count": 2,
			"total_pages": 1,
			"page":        1,
			"data": []map[string]any{
				{
					"id": "1",
					"attributes": map[string]any{
						"language":        "en",
						"release":         "WEBRip",
						"download_count":  120,
						"feature_details": map[string]any{"feature_type": "Movie", "title": "Example Movie", "year": 2024},
						"files":           []map[string]any{{"file_id": 555, "file_name": "example.en"}},
					},
				},
				{
					"id":         "2",
					"attributes": map[string]any{"language": "es", "files": []map[string]any{}},
				},
			},
		})
	}))

	resp, err := client.Search(context.Background(), Auth{Token: "tok"}, SearchRequest{
		Query:     "Example Movie",
		IMDBID:    "tt7654321",
		Languages: []string{"en", "es"},
		Page:      2,
	})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if captured.URL.Path != "/subtitles" {
		t.Fatalf("unexpected path %q", captured.URL.Path)
	}
	q := captured.URL.Query()
	if q.Get("query") != "Example Movie" || q.Get("imdb_id") != "7654321" || q.Get("languages") != "en,es" || q.Get("page") != "2" {
		t.Fatalf("unexpected query %v", q)
	}
	if captured.Header.Get("Api-Key") != "abc" || captured.Header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("missing headers: %v", captured.Header)
	}
	if captured.Header.Get("User-Agent") != "subselect/test" {
		t.Fatalf("unexpected user agent %q", captured.Header.Get("User-Agent"))
	}
	if len(resp.Subtitles) != 1 || resp.Subtitles[0].FileID != 555 || resp.Subtitles[0].FeatureTitle != "Example Movie" {
		t.Fatalf("unexpected subtitles %+v", resp.Subtitles)
	}
	if resp.Total != 2 {
		t.Fatalf("unexpected total %d", resp.Total)
	}
}

func TestDownloadNegotiatesLinkAndFetchesFile(t *testing.T) {
	var downloadBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &downloadBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"link":      "/files/555.srt",
			"file_name": "Example.Movie.srt",
			"remaining": 99,
		})
	})
	mux.HandleFunc("/files/555.srt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "1\n00:00:01,000 --> 00:00:02,000\nHello\n")
	})
	client, _ := newTestClient(t, mux)

	result, err := client.Download(context.Background(), Auth{Token: "tok"}, 555)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if downloadBody["file_id"] != float64(555) || downloadBody["sub_format"] != "srt" {
		t.Fatalf("unexpected download body %v", downloadBody)
	}
	if !strings.Contains(string(result.Data), "Hello") || result.FileName != "Example.Movie.srt" || result.Remaining != 99 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrAuthRequired},
		{http.StatusForbidden, services.ErrAuthRequired},
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusNotAcceptable, services.ErrUpstream},
		{http.StatusInternalServerError, services.ErrUpstream},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			_, err := client.Download(context.Background(), Auth{Token: "tok"}, 1)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
			if StatusCode(err) != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, StatusCode(err))
			}
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	client, err := New(Config{APIKey: "abc", BaseURL: base})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Download(context.Background(), Auth{Token: "tok"}, 1)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !IsRetriable(err) {
		t.Fatal("expected transport failure to be retriable")
	}
}

func TestUserInfoUsesVIPEndpoint(t *testing.T) {
	var path string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, `{"data":{"user_id":7,"level":"VIP Member","vip":true,"allowed_downloads":1000,"downloads_count":3,"remaining_downloads":997,"reset_time_utc":"2026-01-01T00:00:00Z"}}`)
	}))

	info, err := client.UserInfo(context.Background(), Auth{Token: "tok", BaseURL: VIPHost})
	if err != nil {
		t.Fatalf("UserInfo returned error: %v", err)
	}
	if path != "/vip/infos/user" {
		t.Fatalf("expected VIP endpoint, got %q", path)
	}
	if !info.VIP || info.RemainingDownloads != 997 || info.UserID != 7 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestUserInfoWithoutTokenIsAuthRequired(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())
	if _, err := client.UserInfo(context.Background(), Auth{}); !errors.Is(err, services.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
}

func TestLanguagesParsesCatalogue(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infos/languages" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"language_code":"en","language_name":"English"},{"language_code":"","language_name":"?"},{"language_code":"zh-cn","language_name":"Chinese (simplified)"}]}`)
	}))
	langs, err := client.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages returned error: %v", err)
	}
	if len(langs) != 2 || langs[1].Code != "zh-cn" {
		t.Fatalf("unexpected languages %+v", langs)
	}
}

func TestLogin(t *testing.T) {
	var body map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		_, _ = io.WriteString(w, `{"token":"new-token","base_url":"vip-api.opensubtitles.com","user":{"vip":true,"allowed_downloads":1000}}`)
	}))
	result, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if body["username"] != "alice" || body["password"] != "secret" {
		t.Fatalf("unexpected login body %v", body)
	}
	if result.Token != "new-token" || result.BaseURL != VIPHost || !result.User.VIP {
		t.Fatalf("unexpected login result %+v", result)
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad gateway", &StatusError{StatusCode: http.StatusBadGateway}, true},
		{"not found", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"unauthorized", &StatusError{StatusCode: http.StatusUnauthorized}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetriable(tc.err); got != tc.want {
				t.Fatalf("IsRetriable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffCaps(t *testing.T) {
	if Backoff(1) != InitialBackoff {
		t.Fatalf("unexpected first backoff %v", Backoff(1))
	}
	if Backoff(3) != 4*InitialBackoff {
		t.Fatalf("unexpected third backoff %v", Backoff(3))
	}
	if Backoff(10) != MaxBackoff {
		t.Fatalf("expected cap, got %v", Backoff(10))
	}
}
