package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/reportlens/reportlens/evaluation"
	"github.com/reportlens/reportlens/rag/types"
)

// Client is a client for the report Q&A API
type Client struct {
	BaseURL string
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
	}
}

// QueryResponse is the answer to a query together with its context and, for
// grounded answers, the evaluation record.
type QueryResponse struct {
	Answer     string               `json:"answer"`
	Grounded   bool                 `json:"grounded"`
	Contexts   []types.SearchResult `json:"contexts"`
	Evaluation *evaluation.Record   `json:"evaluation,omitempty"`
}

// Stats mirrors the GET /api/stats response.
type Stats struct {
	Entries       int            `json:"entries"`
	Documents     int            `json:"documents"`
	EntriesPerDoc map[string]int `json:"entries_per_doc"`
	Inconsistent  []string       `json:"inconsistent"`
}

// Upload indexes the file at filePath as documentID. An empty documentID
// defaults server-side to the file base name.
func (c *Client) Upload(documentID, filePath string) (types.DocumentRecord, error) {
	url := fmt.Sprintf("%s/api/documents", c.BaseURL)

	file, err := os.Open(filePath)
	if err != nil {
		return types.DocumentRecord{}, err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if documentID != "" {
		if err := writer.WriteField("document_id", documentID); err != nil {
			return types.DocumentRecord{}, err
		}
	}

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return types.DocumentRecord{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return types.DocumentRecord{}, err
	}
	if err := writer.Close(); err != nil {
		return types.DocumentRecord{}, err
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return types.DocumentRecord{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.DocumentRecord{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return types.DocumentRecord{}, apiError(resp)
	}

	var rec types.DocumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return types.DocumentRecord{}, err
	}
	return rec, nil
}

// Reindex re-runs indexing for documentID from its stored source.
func (c *Client) Reindex(documentID string) (types.DocumentRecord, error) {
	url := fmt.Sprintf("%s/api/documents/%s/reindex", c.BaseURL, documentID)

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return types.DocumentRecord{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.DocumentRecord{}, apiError(resp)
	}

	var rec types.DocumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return types.DocumentRecord{}, err
	}
	return rec, nil
}

// ListDocuments lists all registered documents
func (c *Client) ListDocuments() ([]types.DocumentRecord, error) {
	url := fmt.Sprintf("%s/api/documents", c.BaseURL)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var records []types.DocumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes a document and its entries
func (c *Client) Delete(documentID string) error {
	url := fmt.Sprintf("%s/api/documents/%s", c.BaseURL, documentID)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

// Stats fetches store statistics and the consistency report
func (c *Client) Stats() (Stats, error) {
	url := fmt.Sprintf("%s/api/stats", c.BaseURL)

	resp, err := http.Get(url)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, apiError(resp)
	}

	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Query asks a question scoped to documentIDs. style is one of standard,
// step-by-step or issue-focused; k and reference are optional.
func (c *Client) Query(query string, documentIDs []string, style string, k int, reference string) (QueryResponse, error) {
	url := fmt.Sprintf("%s/api/query", c.BaseURL)

	type request struct {
		Query       string   `json:"query"`
		DocumentIDs []string `json:"document_ids,omitempty"`
		Style       string   `json:"style,omitempty"`
		K           int      `json:"k,omitempty"`
		Reference   string   `json:"reference,omitempty"`
	}

	payload, err := json.Marshal(request{
		Query:       query,
		DocumentIDs: documentIDs,
		Style:       style,
		K:           k,
		Reference:   reference,
	})
	if err != nil {
		return QueryResponse{}, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return QueryResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QueryResponse{}, apiError(resp)
	}

	var qr QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return QueryResponse{}, err
	}
	return qr, nil
}

// Evaluations reads back the evaluation records for a day (YYYYMMDD).
func (c *Client) Evaluations(date string) ([]evaluation.Record, error) {
	url := fmt.Sprintf("%s/api/evaluations?date=%s", c.BaseURL, date)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var records []evaluation.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, payload.Error)
	}
	return errors.New(resp.Status)
}
