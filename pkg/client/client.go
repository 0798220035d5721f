// Package client is a Go client for the COI tracking API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/davidahmann/coitrack/pkg/types"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Document is a document as served by the API, with its derived fields.
type Document struct {
	types.Document
	CompliancePercentage int  `json:"compliancePercentage"`
	ExpiringSoon         bool `json:"expiringSoon"`
	DaysUntilExpiration  *int `json:"daysUntilExpiration,omitempty"`
}

type Counts struct {
	All          int `json:"all"`
	Pending      int `json:"pending"`
	Approved     int `json:"approved"`
	NonCompliant int `json:"non_compliant"`
	ExpiringSoon int `json:"expiring_soon"`
	Expired      int `json:"expired"`
}

type Verification struct {
	ID         string                     `json:"id"`
	DocumentID string                     `json:"documentId"`
	Status     string                     `json:"status"`
	Payload    *types.VerificationPayload `json:"payload,omitempty"`
	Error      string                     `json:"error,omitempty"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

type UploadResult struct {
	Document     Document     `json:"document"`
	Verification Verification `json:"verification"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	// Retries bounds extra attempts for GET requests that fail with a
	// transport error or a 5xx status.
	Retries uint64
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Retries: 2,
	}
}

type ListOptions struct {
	VendorID   string
	BuildingID string
	Status     string
	Bucket     string
}

func (o ListOptions) query() string {
	v := url.Values{}
	for key, value := range map[string]string{
		"vendor_id":   o.VendorID,
		"building_id": o.BuildingID,
		"status":      o.Status,
		"bucket":      o.Bucket,
	} {
		if value != "" {
			v.Set(key, value)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) ListDocuments(ctx context.Context, opts ListOptions) ([]Document, error) {
	var out []Document
	err := c.get(ctx, "/api/coi/documents"+opts.query(), &out)
	return out, err
}

func (c *Client) GetDocument(ctx context.Context, id string) (Document, error) {
	var out Document
	err := c.get(ctx, "/api/coi/documents/"+url.PathEscape(id), &out)
	return out, err
}

func (c *Client) Counts(ctx context.Context, opts ListOptions) (Counts, error) {
	opts.Status, opts.Bucket = "", ""
	var out Counts
	err := c.get(ctx, "/api/coi/documents/counts"+opts.query(), &out)
	return out, err
}

func (c *Client) Verification(ctx context.Context, id string) (Verification, error) {
	var out Verification
	err := c.get(ctx, "/api/coi/verifications/"+url.PathEscape(id), &out)
	return out, err
}

func (c *Client) RequestDocument(ctx context.Context, vendorID, buildingID, templateID string) (Document, error) {
	var out Document
	body := map[string]string{"vendorId": vendorID, "buildingId": buildingID}
	if templateID != "" {
		body["templateId"] = templateID
	}
	err := c.sendJSON(ctx, http.MethodPost, "/api/coi/documents", body, &out)
	return out, err
}

func (c *Client) Approve(ctx context.Context, id, overrideReason string) (Document, error) {
	var out Document
	body := map[string]string{}
	if overrideReason != "" {
		body["overrideReason"] = overrideReason
	}
	err := c.sendJSON(ctx, http.MethodPost, "/api/coi/documents/"+url.PathEscape(id)+"/approve", body, &out)
	return out, err
}

func (c *Client) Reject(ctx context.Context, id, reason string) (Document, error) {
	var out Document
	err := c.sendJSON(ctx, http.MethodPost, "/api/coi/documents/"+url.PathEscape(id)+"/reject", map[string]string{"reason": reason}, &out)
	return out, err
}

func (c *Client) ListVendors(ctx context.Context) ([]types.Vendor, error) {
	var out []types.Vendor
	err := c.get(ctx, "/api/vendors", &out)
	return out, err
}

func (c *Client) CreateVendor(ctx context.Context, v types.Vendor) (types.Vendor, error) {
	var out types.Vendor
	err := c.sendJSON(ctx, http.MethodPost, "/api/vendors", v, &out)
	return out, err
}

func (c *Client) CreateBuilding(ctx context.Context, b types.Building) (types.Building, error) {
	var out types.Building
	err := c.sendJSON(ctx, http.MethodPost, "/api/buildings", b, &out)
	return out, err
}

type Upload struct {
	VendorID   string
	BuildingID string
	TemplateID string
	DocumentID string
	FileName   string
	Data       []byte
	Wait       bool
}

func (c *Client) Upload(ctx context.Context, u Upload) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range map[string]string{
		"vendor_id":   u.VendorID,
		"building_id": u.BuildingID,
		"template_id": u.TemplateID,
		"document_id": u.DocumentID,
	} {
		if value == "" {
			continue
		}
		if err := mw.WriteField(key, value); err != nil {
			return UploadResult{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", u.FileName)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := fw.Write(u.Data); err != nil {
		return UploadResult{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	path := "/api/coi/documents/upload"
	if u.Wait {
		path += "?wait=true"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	err = c.do(req, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	backoff := retry.WithMaxRetries(c.Retries, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		err = c.do(req, out)
		if se, ok := err.(*StatusError); ok && se.StatusCode < http.StatusInternalServerError {
			return err
		}
		if err != nil && ctx.Err() == nil {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
