// Package speakerhub provides a typed client for the speaker identity
// resolution API.
package speakerhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// ClientOptions configures the API client.
type ClientOptions struct {
	// BaseURL is the base URL of the service, without a path.
	BaseURL string
	// APIKey is sent as a bearer token on every request.
	APIKey string
	// DiarizerSecret, when set, signs IngestDiarizationResult payloads the way
	// the service verifies them (Standard Webhooks). Leave empty when the
	// service runs without DIARIZER_WEBHOOK_SECRET.
	DiarizerSecret string
	// RetryMax is the maximum number of retries (default: 3).
	RetryMax int
	// Timeout is the HTTP client timeout (default: 30 seconds).
	Timeout time.Duration
}

// Client is the API client. It retries transient failures with backoff.
type Client struct {
	baseURL        string
	apiKey         string
	diarizerSecret string
	httpClient     *retryablehttp.Client
}

// NewClient creates a client with default settings.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithOptions(ClientOptions{
		BaseURL: baseURL,
		APIKey:  apiKey,
	})
}

// NewClientWithOptions creates a client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	return &Client{
		baseURL:        opts.BaseURL,
		apiKey:         opts.APIKey,
		diarizerSecret: opts.DiarizerSecret,
		httpClient:     retryClient,
	}
}

// APIError is a non-2xx response decoded from the service's RFC 7807 body.
// MergedInto carries the surviving profile ID when a request hit a profile
// absorbed by a merge.
type APIError struct {
	Status     int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	MergedInto string `json:"merged_into,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("speakerhub: %s (status %d): %s", e.Title, e.Status, e.Detail)
	}

	return fmt.Sprintf("speakerhub: %s (status %d)", e.Title, e.Status)
}

const maxErrorBodyLen = 512

func newAPIError(status int, body []byte) *APIError {
	var problem APIError
	if len(body) > 0 && json.Unmarshal(body, &problem) == nil && problem.Title != "" {
		problem.Status = status

		return &problem
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorBodyLen {
		detail = detail[:maxErrorBodyLen]
	}

	return &APIError{Status: status, Title: http.StatusText(status), Detail: detail}
}

// do sends one JSON request and decodes the response into out (skipped when
// out is nil). Any status other than wantStatus becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, wantStatus int) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	return c.doRaw(ctx, method, reqURL, payload, nil, out, wantStatus)
}

func (c *Client) doRaw(ctx context.Context, method, reqURL string, payload []byte, header http.Header, out any, wantStatus int) error {
	var rawBody any
	if payload != nil {
		rawBody = payload
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, reqURL, rawBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// IngestDiarizationResult submits one diarization result. When the client was
// built with a DiarizerSecret, the payload is signed with Standard Webhooks
// headers over the exact bytes sent.
func (c *Client) IngestDiarizationResult(ctx context.Context, req *DiarizationResultRequest) (*DiarizationAcceptedResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	header := http.Header{}

	if c.diarizerSecret != "" {
		signer, err := standardwebhooks.NewWebhook(c.diarizerSecret)
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}

		messageID := uuid.NewString()
		timestamp := time.Now()

		signature, err := signer.Sign(messageID, timestamp, payload)
		if err != nil {
			return nil, fmt.Errorf("sign payload: %w", err)
		}

		header.Set(standardwebhooks.HeaderWebhookID, messageID)
		header.Set(standardwebhooks.HeaderWebhookSignature, signature)
		header.Set(standardwebhooks.HeaderWebhookTimestamp, strconv.FormatInt(timestamp.Unix(), 10))
	}

	var accepted DiarizationAcceptedResponse
	if err := c.doRaw(ctx, http.MethodPost, c.baseURL+"/v1/diarization/results", payload, header, &accepted, http.StatusAccepted); err != nil {
		return nil, err
	}

	return &accepted, nil
}

// ListMediaItemsOptions filters and pages ListMediaItems.
type ListMediaItemsOptions struct {
	TenantID    string
	ExternalRef string
	Limit       int
	Offset      int
}

// ListMediaItems retrieves one page of media items. opts may be nil.
func (c *Client) ListMediaItems(ctx context.Context, opts *ListMediaItemsOptions) (*ListMediaItemsResponse, error) {
	params := url.Values{}

	if opts != nil {
		if opts.TenantID != "" {
			params.Set("tenant_id", opts.TenantID)
		}

		if opts.ExternalRef != "" {
			params.Set("external_ref", opts.ExternalRef)
		}

		setPagination(params, opts.Limit, opts.Offset)
	}

	var out ListMediaItemsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/media-items", params, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetMediaItem retrieves one media item.
func (c *Client) GetMediaItem(ctx context.Context, id uuid.UUID) (*MediaItem, error) {
	var out MediaItem
	if err := c.do(ctx, http.MethodGet, "/v1/media-items/"+id.String(), nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListSuggestions retrieves the suggestion/verification view for one media item.
func (c *Client) ListSuggestions(ctx context.Context, mediaItemID uuid.UUID) (*ListSuggestionsResponse, error) {
	var out ListSuggestionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/media-items/"+mediaItemID.String()+"/suggestions", nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// VerifySpeaker applies a human decision to a file speaker and returns the
// profile the speaker ended up on.
func (c *Client) VerifySpeaker(ctx context.Context, speakerID uuid.UUID, req *VerifySpeakerRequest) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodPost, "/v1/speakers/"+speakerID.String()+"/verify", nil, req, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListSpeakerSegments retrieves one file speaker's transcript in playback order.
func (c *Client) ListSpeakerSegments(ctx context.Context, speakerID uuid.UUID) (*SpeakerSegmentsResponse, error) {
	var out SpeakerSegmentsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/speakers/"+speakerID.String()+"/segments", nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListProfilesOptions filters and pages ListProfiles.
type ListProfilesOptions struct {
	TenantID     string
	Verification VerificationState
	// Name filters by display name substring.
	Name string
	// Named, when set, keeps only profiles with (true) or without (false) a
	// display name.
	Named  *bool
	Limit  int
	Offset int
}

// ListProfiles retrieves one page of profiles with their stats. opts may be nil.
func (c *Client) ListProfiles(ctx context.Context, opts *ListProfilesOptions) (*ListProfilesResponse, error) {
	params := url.Values{}

	if opts != nil {
		if opts.TenantID != "" {
			params.Set("tenant_id", opts.TenantID)
		}

		if opts.Verification != "" {
			params.Set("verification", string(opts.Verification))
		}

		if opts.Name != "" {
			params.Set("name", opts.Name)
		}

		if opts.Named != nil {
			params.Set("named", strconv.FormatBool(*opts.Named))
		}

		setPagination(params, opts.Limit, opts.Offset)
	}

	var out ListProfilesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/profiles", params, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetProfile retrieves one profile with its stats.
func (c *Client) GetProfile(ctx context.Context, id uuid.UUID) (*ProfileWithStats, error) {
	var out ProfileWithStats
	if err := c.do(ctx, http.MethodGet, "/v1/profiles/"+id.String(), nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateProfile renames and/or verifies a profile. A rename triggers a
// relabel pass on the server; its summary comes back in the response.
func (c *Client) UpdateProfile(ctx context.Context, id uuid.UUID, req *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	var out UpdateProfileResponse
	if err := c.do(ctx, http.MethodPatch, "/v1/profiles/"+id.String(), nil, req, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteProfile deletes a profile. The service refuses profiles that still
// own voiceprints or speakers.
func (c *Client) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/profiles/"+id.String(), nil, nil, nil, http.StatusNoContent)
}

// ListOccurrencesOptions pages ListOccurrences.
type ListOccurrencesOptions struct {
	Limit int
	// Cursor continues from a previous page's NextCursor.
	Cursor string
}

// ListOccurrences retrieves one keyset page of a profile's cross-media
// appearances. opts may be nil.
func (c *Client) ListOccurrences(ctx context.Context, profileID uuid.UUID, opts *ListOccurrencesOptions) (*ListOccurrencesResponse, error) {
	params := url.Values{}

	if opts != nil {
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}

		if opts.Cursor != "" {
			params.Set("cursor", opts.Cursor)
		}
	}

	var out ListOccurrencesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/profiles/"+profileID.String()+"/occurrences", params, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// MergeProfiles absorbs source profiles into a target, one source at a time.
// A non-nil error means the request itself failed; per-source failures come
// back inside the outcome.
func (c *Client) MergeProfiles(ctx context.Context, req *MergeProfilesRequest) (*MergeOutcome, error) {
	var out MergeOutcome
	if err := c.do(ctx, http.MethodPost, "/v1/profiles/merge", nil, req, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateWebhook registers a webhook endpoint. The response carries the
// signing key to verify deliveries with.
func (c *Client) CreateWebhook(ctx context.Context, req *CreateWebhookRequest) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodPost, "/v1/webhooks", nil, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetWebhook retrieves one webhook.
func (c *Client) GetWebhook(ctx context.Context, id uuid.UUID) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodGet, "/v1/webhooks/"+id.String(), nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListWebhooksOptions filters and pages ListWebhooks.
type ListWebhooksOptions struct {
	Enabled  *bool
	TenantID string
	Limit    int
	Offset   int
}

// ListWebhooks retrieves one page of webhooks. opts may be nil.
func (c *Client) ListWebhooks(ctx context.Context, opts *ListWebhooksOptions) (*ListWebhooksResponse, error) {
	params := url.Values{}

	if opts != nil {
		if opts.Enabled != nil {
			params.Set("enabled", strconv.FormatBool(*opts.Enabled))
		}

		if opts.TenantID != "" {
			params.Set("tenant_id", opts.TenantID)
		}

		setPagination(params, opts.Limit, opts.Offset)
	}

	var out ListWebhooksResponse
	if err := c.do(ctx, http.MethodGet, "/v1/webhooks", params, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateWebhook updates a webhook endpoint.
func (c *Client) UpdateWebhook(ctx context.Context, id uuid.UUID, req *UpdateWebhookRequest) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodPatch, "/v1/webhooks/"+id.String(), nil, req, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteWebhook removes a webhook endpoint.
func (c *Client) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/webhooks/"+id.String(), nil, nil, nil, http.StatusNoContent)
}

func setPagination(params url.Values, limit, offset int) {
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
}
