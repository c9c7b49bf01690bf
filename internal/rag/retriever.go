package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Retriever finds passages relevant to a query. The remote and local
// variants are interchangeable; selection is a configuration choice.
type Retriever interface {
	RelevantContext(ctx context.Context, query string, nDocs int) (string, error)
}

// AugmentedPrompt combines the query with retrieved context into one
// deterministic prompt string.
func AugmentedPrompt(query, context string) string {
	return fmt.Sprintf("Using the information below, answer the following query.\nContext:\n%s\nQuestion:\n%s", context, query)
}

// RemoteRetriever queries an external retrieval index over HTTP.
type RemoteRetriever struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteRetriever creates a RemoteRetriever for the given base URL.
func NewRemoteRetriever(baseURL string) *RemoteRetriever {
	return &RemoteRetriever{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

type retrieveRequest struct {
	Query string `json:"query"`
	NDocs int    `json:"n_docs"`
}

type retrieveResponse struct {
	Context string `json:"context"`
}

// RelevantContext returns the top-nDocs passages for the query, joined by
// newlines in the index's relevance order.
func (r *RemoteRetriever) RelevantContext(ctx context.Context, query string, nDocs int) (string, error) {
	payload, err := json.Marshal(retrieveRequest{Query: query, NDocs: nDocs})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/get_relevant_context", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: /get_relevant_context returned status %d", ErrUpstream, resp.StatusCode)
	}

	var out retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	return out.Context, nil
}
