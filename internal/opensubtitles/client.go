package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"subselect/internal/config"
)

const (
	defaultBaseURL     = "https://api.opensubtitles.com/api/v1"
	defaultVIPBaseURL  = "https://vip-api.opensubtitles.com/api/v1"
	defaultUserAgent   = "subselect v1.0"
	defaultHTTPTimeout = 45 * time.Second
	// VIPHost is the base_url value the login endpoint returns for VIP accounts.
	VIPHost = "vip-api.opensubtitles.com"
)

// Config describes the OpenSubtitles client configuration.
type Config struct {
	APIKey     string
	UserAgent  string
	BaseURL    string
	VIPBaseURL string
	HTTPClient *http.Client
}

// ConfigFromApp derives client settings from application config.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:     cfg.OpenSubtitles.APIKey,
		UserAgent:  cfg.OpenSubtitles.UserAgent,
		BaseURL:    cfg.OpenSubtitles.BaseURL,
		VIPBaseURL: cfg.OpenSubtitles.VIPBaseURL,
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.OpenSubtitles.TimeoutSeconds) * time.Second},
	}
}

// Auth carries a user session. BaseURL is the host the login call returned
// and selects the VIP endpoint when it names VIPHost.
type Auth struct {
	Token   string
	BaseURL string
}

// Client wraps the OpenSubtitles REST API.
type Client struct {
	apiKey    string
	userAgent string
	baseURL   *url.URL
	vipURL    *url.URL
	http      *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("opensubtitles: api key is required")
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	baseURL, err := parseBase(cfg.BaseURL, defaultBaseURL)
	if err != nil {
		return nil, err
	}
	vipURL, err := parseBase(cfg.VIPBaseURL, defaultVIPBaseURL)
	if err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil || client.Timeout <= 0 {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		apiKey:    apiKey,
		userAgent: userAgent,
		baseURL:   baseURL,
		vipURL:    vipURL,
		http:      client,
	}, nil
}

func parseBase(raw, fallback string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: parse base url: %w", err)
	}
	return parsed, nil
}

func (c *Client) endpoint(auth Auth, path string) *url.URL {
	base := c.baseURL
	if strings.Contains(strings.ToLower(auth.BaseURL), VIPHost) {
		base = c.vipURL
	}
	return base.JoinPath(path)
}

// SearchRequest describes subtitle discovery filters.
type SearchRequest struct {
	Query     string
	IMDBID    string
	Languages []string
	Season    int
	Episode   int
	Year      string
	Page      int
}

// Subtitle represents a subtitle candidate returned by OpenSubtitles.
type Subtitle struct {
	ID              string `json:"id"`
	FileID          int64  `json:"fileId"`
	FileName        string `json:"fileName"`
	Language        string `json:"language"`
	Release         string `json:"release"`
	FeatureTitle    string `json:"featureTitle"`
	FeatureYear     int    `json:"featureYear"`
	FeatureType     string `json:"featureType"`
	Downloads       int    `json:"downloads"`
	HearingImpaired bool   `json:"hearingImpaired"`
	AITranslated    bool   `json:"aiTranslated"`
}

// SearchResponse bundles the subtitles returned by a query.
type SearchResponse struct {
	Subtitles  []Subtitle `json:"subtitles"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
}

// DownloadResult captures the downloaded subtitle payload.
type DownloadResult struct {
	Data      []byte
	FileName  string
	Remaining int
	ResetTime string
}

// UserInfo summarizes the account quota reported by /infos/user.
type UserInfo struct {
	UserID             int64  `json:"user_id"`
	Level              string `json:"level"`
	VIP                bool   `json:"vip"`
	AllowedDownloads   int    `json:"allowed_downloads"`
	DownloadsCount     int    `json:"downloads_count"`
	RemainingDownloads int    `json:"remaining_downloads"`
	ResetTimeUTC       string `json:"reset_time_utc,omitempty"`
}

// Language is one entry of the language catalogue.
type Language struct {
	Code string `json:"language_code"`
	Name string `json:"language_name"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token   string   `json:"token"`
	BaseURL string   `json:"base_url"`
	User    UserInfo `json:"user"`
}

// Search queries the OpenSubtitles API for matching subtitles.
func (c *Client) Search(ctx context.Context, auth Auth, req SearchRequest) (SearchResponse, error) {
	endpoint := c.endpoint(auth, "subtitles")
	params := url.Values{}
	if q := strings.TrimSpace(req.Query); q != "" {
		params.Set("query", q)
	}
	if imdb := sanitizeIMDBID(req.IMDBID); imdb != "" {
		params.Set("imdb_id", imdb)
	}
	if len(req.Languages) > 0 {
		params.Set("languages", strings.Join(req.Languages, ","))
	}
	if req.Season > 0 {
		params.Set("season_number", strconv.Itoa(req.Season))
	}
	if req.Episode > 0 {
		params.Set("episode_number", strconv.Itoa(req.Episode))
	}
	if req.Year != "" {
		params.Set("year", req.Year)
	}
	if req.Page > 1 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")
	endpoint.RawQuery = params.Encode()

	var payload searchResponse
	if err := c.getJSON(ctx, "search", auth, endpoint, &payload); err != nil {
		return SearchResponse{}, err
	}

	subtitles := make([]Subtitle, 0, len(payload.Data))
	for _, entry := range payload.Data {
		attrs := entry.Attributes
		if attrs.Language == "" || len(attrs.Files) == 0 || attrs.Files[0].FileID == 0 {
			continue
		}
		subtitles = append(subtitles, Subtitle{
			ID:              entry.ID,
			FileID:          attrs.Files[0].FileID,
			FileName:        attrs.Files[0].FileName,
			Language:        attrs.Language,
			Release:         attrs.Release,
			FeatureTitle:    attrs.FeatureDetails.Title,
			FeatureYear:     attrs.FeatureDetails.Year,
			FeatureType:     attrs.FeatureDetails.FeatureType,
			Downloads:       attrs.DownloadCount,
			HearingImpaired: attrs.HearingImpaired,
			AITranslated:    attrs.AITranslated || attrs.MachineTranslated,
		})
	}

	return SearchResponse{
		Subtitles:  subtitles,
		Total:      payload.TotalCount,
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
	}, nil
}

// Download negotiates a download link for fileID and fetches the file body.
func (c *Client) Download(ctx context.Context, auth Auth, fileID int64) (DownloadResult, error) {
	if fileID <= 0 {
		return DownloadResult{}, errors.New("opensubtitles: invalid file id")
	}
	payload, err := json.Marshal(map[string]any{"file_id": fileID, "sub_format": "srt"})
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: encode download request: %w", err)
	}

	endpoint := c.endpoint(auth, "download")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: build download request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq, auth)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return DownloadResult{}, transportError("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return DownloadResult{}, statusError("download", resp)
	}

	var info downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return DownloadResult{}, decodeError("download", err)
	}
	if info.Link == "" {
		return DownloadResult{}, decodeError("download", errors.New("response missing link"))
	}

	downloadURL, err := endpoint.Parse(info.Link)
	if err != nil {
		return DownloadResult{}, decodeError("download", fmt.Errorf("parse download url: %w", err))
	}

	dataReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL.String(), nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: build link request: %w", err)
	}
	dataReq.Header.Set("User-Agent", c.userAgent)
	dataResp, err := c.http.Do(dataReq)
	if err != nil {
		return DownloadResult{}, transportError("fetch subtitle file", err)
	}
	defer dataResp.Body.Close()
	if dataResp.StatusCode >= 400 {
		return DownloadResult{}, statusError("fetch subtitle file", dataResp)
	}
	data, err := io.ReadAll(dataResp.Body)
	if err != nil {
		return DownloadResult{}, transportError("read subtitle file", err)
	}

	return DownloadResult{
		Data:      data,
		FileName:  info.FileName,
		Remaining: info.Remaining,
		ResetTime: info.ResetTime,
	}, nil
}

// UserInfo fetches the account quota for the session.
func (c *Client) UserInfo(ctx context.Context, auth Auth) (UserInfo, error) {
	if strings.TrimSpace(auth.Token) == "" {
		return UserInfo{}, &StatusError{Operation: "user info", StatusCode: http.StatusUnauthorized}
	}
	body, err := c.getRaw(ctx, "user info", auth, c.endpoint(auth, "infos/user"))
	if err != nil {
		return UserInfo{}, err
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return UserInfo{}, decodeError("user info", errors.New("response missing data"))
	}
	return userInfoFromJSON(data), nil
}

func userInfoFromJSON(data gjson.Result) UserInfo {
	return UserInfo{
		UserID:             data.Get("user_id").Int(),
		Level:              data.Get("level").String(),
		VIP:                data.Get("vip").Bool(),
		AllowedDownloads:   int(data.Get("allowed_downloads").Int()),
		DownloadsCount:     int(data.Get("downloads_count").Int()),
		RemainingDownloads: int(data.Get("remaining_downloads").Int()),
		ResetTimeUTC:       data.Get("reset_time_utc").String(),
	}
}

// Languages returns the language catalogue.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	body, err := c.getRaw(ctx, "languages", Auth{}, c.endpoint(Auth{}, "infos/languages"))
	if err != nil {
		return nil, err
	}
	entries := gjson.GetBytes(body, "data")
	if !entries.IsArray() {
		return nil, decodeError("languages", errors.New("response missing data array"))
	}
	var out []Language
	entries.ForEach(func(_, value gjson.Result) bool {
		code := strings.TrimSpace(value.Get("language_code").String())
		if code != "" {
			out = append(out, Language{Code: code, Name: value.Get("language_name").String()})
		}
		return true
	})
	return out, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return LoginResult{}, fmt.Errorf("opensubtitles: encode login request: %w", err)
	}
	endpoint := c.baseURL.JoinPath("login")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return LoginResult{}, fmt.Errorf("opensubtitles: build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq, Auth{})

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return LoginResult{}, transportError("login", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return LoginResult{}, statusError("login", resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoginResult{}, transportError("login", err)
	}
	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return LoginResult{}, decodeError("login", errors.New("response missing token"))
	}
	return LoginResult{
		Token:   token,
		BaseURL: gjson.GetBytes(body, "base_url").String(),
		User:    userInfoFromJSON(gjson.GetBytes(body, "user")),
	}, nil
}

func (c *Client) getRaw(ctx context.Context, op string, auth Auth, endpoint *url.URL) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: build %s request: %w", op, err)
	}
	c.applyHeaders(httpReq, auth)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusError(op, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, op string, auth Auth, endpoint *url.URL, dst any) error {
	body, err := c.getRaw(ctx, op, auth, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return decodeError(op, err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request, auth Auth) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(auth.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func sanitizeIMDBID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.TrimPrefix(value, "tt")
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return ""
	}
	return value
}

type searchResponse struct {
	TotalPages int `json:"total_pages"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	Data       []struct {
		ID         string           `json:"id"`
		Attributes searchAttributes `json:"attributes"`
	} `json:"data"`
}

type searchAttributes struct {
	Language          string         `json:"language"`
	Release           string         `json:"release"`
	DownloadCount     int            `json:"download_count"`
	HearingImpaired   bool           `json:"hearing_impaired"`
	AITranslated      bool           `json:"ai_translated"`
	MachineTranslated bool           `json:"machine_translated"`
	FeatureDetails    featureDetails `json:"feature_details"`
	Files             []searchFile   `json:"files"`
}

type featureDetails struct {
	FeatureType string `json:"feature_type"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
}

type searchFile struct {
	FileID   int64  `json:"file_id"`
	FileName string `json:"file_name"`
}

type downloadResponse struct {
	Link      string `json:"link"`
	FileName  string `json:"file_name"`
	Remaining int    `json:"remaining"`
	ResetTime string `json:"reset_time_utc"`
}
