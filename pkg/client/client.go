package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/docstack/answerbox/chat"
)

// Client is a client for the question-answering API.
type Client struct {
	BaseURL    string
	APIKey     string
	AdminToken string
}

// NewClient creates a client for the API at baseURL, authenticating
// with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

// APIError is a machine-readable failure returned by the server.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.Status)
}

func (c *Client) do(method, path string, body io.Reader, contentType string, admin bool, out any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	} else if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Kind = "Unexpected error"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(path string, payload any, admin bool, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, bytes.NewReader(data), "application/json", admin, out)
}

// Chat asks a question and returns the grounded (or explicitly
// ungrounded) answer.
func (c *Client) Chat(question string) (*chat.Response, error) {
	var response chat.Response
	err := c.postJSON("/api/v1/chat", map[string]string{"question": question}, false, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Health reports the service and backend status. No authentication
// required.
func (c *Client) Health() (map[string]any, error) {
	var status map[string]any
	if err := c.do(http.MethodGet, "/api/v1/health", nil, "", false, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Document is a registered document as reported by the API.
type Document struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	ChunkCount int    `json:"chunk_count"`
	IsIndexed  bool   `json:"is_indexed"`
}

// Documents lists the indexed documents.
func (c *Client) Documents() ([]Document, error) {
	var response struct {
		Documents []Document `json:"documents"`
	}
	if err := c.do(http.MethodGet, "/api/v1/documents", nil, "", false, &response); err != nil {
		return nil, err
	}
	return response.Documents, nil
}

// Stats returns knowledge base statistics.
func (c *Client) Stats() (map[string]any, error) {
	var stats map[string]any
	if err := c.do(http.MethodGet, "/api/v1/stats", nil, "", false, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// UploadDocument uploads and indexes a file. Requires the admin token.
func (c *Client) UploadDocument(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.do(http.MethodPost, "/api/v1/admin/documents", &buf, writer.FormDataContentType(), true, nil)
}

// CreatedKey is returned once when a key is created; Key is the
// plaintext secret.
type CreatedKey struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit"`
}

// CreateAPIKey creates a new API key. Requires the admin token.
func (c *Client) CreateAPIKey(name string, rateLimit int) (*CreatedKey, error) {
	var created CreatedKey
	payload := map[string]any{"name": name, "rate_limit": rateLimit}
	if err := c.postJSON("/api/v1/admin/api-keys", payload, true, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddSource registers an external source URL. Requires the admin token.
func (c *Client) AddSource(url, updateInterval string) error {
	payload := map[string]string{"url": url, "update_interval": updateInterval}
	return c.postJSON("/api/v1/admin/sources", payload, true, nil)
}

// Reindex rebuilds the chunk index. Requires the admin token.
func (c *Client) Reindex() error {
	return c.do(http.MethodPost, "/api/v1/admin/reindex", nil, "", true, nil)
}
