package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blood-donation-functions/internal/models"
)

// Field masks accepted by the place details endpoint
const (
	PlaceFieldID          = "id"
	PlaceFieldLocation    = "location"
	PlaceFieldDisplayName = "displayName"
)

// DefaultPlacesBaseURL is the Places API (New) endpoint
const DefaultPlacesBaseURL = "https://places.googleapis.com"

// PlacesClient calls the Google Places API (New) autocomplete and details endpoints
type PlacesClient struct {
	httpClient *http.Client
	baseURL    string
}

// APIError is a non-2xx response from the Places API
type APIError struct {
	StatusCode int
	Status     string // upstream error.status, e.g. INVALID_ARGUMENT
	Message    string // upstream error.message; empty if the body was not a Google error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("places API returned status %d", e.StatusCode)
}

type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewPlacesClient creates a client for baseURL with the given request timeout
func NewPlacesClient(baseURL string, timeout time.Duration) *PlacesClient {
	if baseURL == "" {
		baseURL = DefaultPlacesBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &PlacesClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Autocomplete posts an autocomplete request and returns the suggestions in upstream order
func (p *PlacesClient) Autocomplete(ctx context.Context, apiKey string, req models.AutocompleteRequest) (*models.AutocompleteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal autocomplete request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/places:autocomplete", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create autocomplete request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", apiKey)

	var resp models.AutocompleteResponse
	if err := p.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPlace fetches a place record restricted to the given fields
func (p *PlacesClient) GetPlace(ctx context.Context, apiKey, placeID string, fields ...string) (*models.Place, error) {
	if placeID == "" {
		return nil, fmt.Errorf("place ID cannot be empty")
	}

	endpoint := p.baseURL + "/v1/places/" + url.PathEscape(placeID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create place details request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", apiKey)
	if len(fields) > 0 {
		httpReq.Header.Set("X-Goog-FieldMask", strings.Join(fields, ","))
	}

	var place models.Place
	if err := p.do(httpReq, &place); err != nil {
		return nil, err
	}
	return &place, nil
}

func (p *PlacesClient) do(req *http.Request, out interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var gerr googleErrorBody
		if json.Unmarshal(body, &gerr) == nil {
			apiErr.Message = gerr.Error.Message
			apiErr.Status = gerr.Error.Status
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
