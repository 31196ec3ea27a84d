// Package ingestion implements the upload client port against the HTTP
// ingestion endpoint.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/19karthik/document-migration/internal/config"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// HTTPUploadClient submits batches to the ingestion endpoint as multipart
// form requests and decodes the canonical per-item response.
type HTTPUploadClient struct {
	httpClient *http.Client
	url        string
	asyncURL   string
	apiKey     string
}

// NewHTTPUploadClient creates a client from ingestion configuration.
func NewHTTPUploadClient(cfg config.IngestionConfig) *HTTPUploadClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPUploadClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		asyncURL:   cfg.AsyncURL,
		apiKey:     cfg.APIKey,
	}
}

// uploadResponse is the endpoint's canonical response shape. Anything that
// does not decode into it is a transport failure.
type uploadResponse struct {
	Accepted []string             `json:"accepted"`
	Rejected []outbound.Rejection `json:"rejected"`
}

// Submit sends the items as one multipart request and returns the per-item
// outcome. Non-2xx statuses and malformed bodies surface as errors so the
// retry engine treats the whole batch as unresolved.
func (c *HTTPUploadClient) Submit(
	ctx context.Context,
	items []entity.Item,
	meta outbound.SubmissionMeta,
) (outbound.BatchResult, error) {
	body, contentType, err := buildForm(items, meta, "")
	if err != nil {
		return outbound.BatchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return outbound.BatchResult{}, fmt.Errorf("build upload request: %w", err)
	}
	c.setHeaders(req, contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outbound.BatchResult{}, fmt.Errorf("transport: submit batch %d: %w", meta.BatchNo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return outbound.BatchResult{}, fmt.Errorf(
			"transport: batch %d returned status %d: %s", meta.BatchNo, resp.StatusCode, string(snippet))
	}

	var decoded uploadResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&decoded); err != nil {
		return outbound.BatchResult{}, fmt.Errorf("transport: batch %d returned malformed body: %w", meta.BatchNo, err)
	}
	if decoded.Accepted == nil && decoded.Rejected == nil {
		return outbound.BatchResult{}, fmt.Errorf("transport: batch %d response carries no item outcome", meta.BatchNo)
	}

	return outbound.BatchResult{Accepted: decoded.Accepted, Rejected: decoded.Rejected}, nil
}

// SubmitAsync sends the batch with a callback URL. The endpoint acknowledges
// receipt with a 2xx status; item outcomes arrive on the callback later.
func (c *HTTPUploadClient) SubmitAsync(
	ctx context.Context,
	items []entity.Item,
	meta outbound.SubmissionMeta,
	callbackURL string,
) error {
	body, contentType, err := buildForm(items, meta, callbackURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.asyncURL, body)
	if err != nil {
		return fmt.Errorf("build async upload request: %w", err)
	}
	c.setHeaders(req, contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: submit batch %d async: %w", meta.BatchNo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("transport: async batch %d returned status %d: %s",
			meta.BatchNo, resp.StatusCode, string(snippet))
	}
	return nil
}

func (c *HTTPUploadClient) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// buildForm assembles the multipart body: job metadata fields first, then
// one file part per item named by its bundle-relative path.
func buildForm(items []entity.Item, meta outbound.SubmissionMeta, callbackURL string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fields := map[string]string{
		"job_id":    meta.JobID,
		"tenant_id": meta.TenantID,
		"batch_no":  strconv.Itoa(meta.BatchNo),
		"attempt":   strconv.Itoa(meta.Attempt),
	}
	if callbackURL != "" {
		fields["callback_url"] = callbackURL
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	for _, item := range items {
		part, err := w.CreateFormFile("files", item.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create form part for %s: %w", item.Name, err)
		}
		src, err := os.Open(item.Path)
		if err != nil {
			return nil, "", fmt.Errorf("open item %s: %w", item.Name, err)
		}
		if _, err := io.Copy(part, src); err != nil {
			src.Close()
			return nil, "", fmt.Errorf("copy item %s into form: %w", item.Name, err)
		}
		src.Close()
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart form: %w", err)
	}
	return body, w.FormDataContentType(), nil
}
