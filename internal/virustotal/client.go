package virustotal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultURL is the public VirusTotal API host.
	DefaultURL = "https://www.virustotal.com"

	// Files above this size must go through a one-off upload URL.
	maxDirectUploadSize = 32 << 20
)

var (
	// ErrWrongCredentials is returned when the API key is rejected (401/403).
	ErrWrongCredentials = errors.New("virustotal rejected the API key")
	// ErrQuotaExceeded is returned when the API key is over its request quota (429).
	ErrQuotaExceeded = errors.New("virustotal quota exceeded")
	// ErrNotFound is returned when the requested analysis or file is unknown (404).
	ErrNotFound = errors.New("virustotal resource not found")
)

// APIError is a non-2xx answer not covered by the sentinel errors.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("virustotal request failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("virustotal request failed (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to the VirusTotal v3 REST API.
type Client struct {
	HTTPClient *retryablehttp.Client
	URL        string
	APIKey     string
}

// NewClient returns a Client with a pre-configured retrying HTTP client.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}
	httpClient.RetryWaitMin = 1 * time.Second
	httpClient.RetryWaitMax = 30 * time.Second
	httpClient.RetryMax = 3
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = slog.Default()

	if url == "" {
		url = DefaultURL
	}

	return &Client{
		HTTPClient: httpClient,
		URL:        strings.TrimRight(url, "/"),
		APIKey:     apiKey,
	}
}

type uploadResponse struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type uploadURLResponse struct {
	Data string `json:"data"`
}

type analysisResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string         `json:"status"`
			Stats  map[string]int `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
	Meta struct {
		FileInfo struct {
			SHA256 string `json:"sha256"`
			Size   int64  `json:"size"`
		} `json:"file_info"`
	} `json:"meta"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadFile submits the file at path for analysis and returns the analysis ID.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to inspect file: %w", err)
	}

	endpoint := c.URL + "/api/v3/files"
	if info.Size() > maxDirectUploadSize {
		endpoint, err = c.uploadURL(ctx)
		if err != nil {
			return "", err
		}
	}

	body, contentType, length, err := newMultipartFile(path, info.Size())
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = length
	req.Header.Set("Content-Type", contentType)

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("failed to upload %s: response did not include an analysis id", filepath.Base(path))
	}

	return resp.Data.ID, nil
}

// uploadURL requests a one-off URL for uploading files larger than 32MB.
func (c *Client) uploadURL(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.URL+"/api/v3/files/upload_url", nil)
	if err != nil {
		return "", err
	}

	var resp uploadURLResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("failed to get upload url: %w", err)
	}
	if resp.Data == "" {
		return "", errors.New("failed to get upload url: empty response")
	}
	return resp.Data, nil
}

// GetAnalysis fetches the current state of an analysis.
func (c *Client) GetAnalysis(ctx context.Context, id string) (Analysis, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v3/analyses/%s", c.URL, id), nil)
	if err != nil {
		return Analysis{}, err
	}

	var resp analysisResponse
	if err := c.do(req, &resp); err != nil {
		return Analysis{}, fmt.Errorf("failed to get analysis %s: %w", id, err)
	}

	return Analysis{
		ID:     id,
		Status: resp.Data.Attributes.Status,
		Stats:  resp.Data.Attributes.Stats,
		SHA256: resp.Meta.FileInfo.SHA256,
	}, nil
}

func (c *Client) do(req *retryablehttp.Request, out interface{}) error {
	req.Header.Set("x-apikey", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrWrongCredentials, newAPIError(resp).Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, newAPIError(resp).Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, newAPIError(resp).Message)
	default:
		return newAPIError(resp)
	}
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Code != "" {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
