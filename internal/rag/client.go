// Package rag talks to the external retrieval and LLM services and builds
// augmented prompts. Calls are single-attempt; failures surface to the
// caller unretried.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chatledger/chatledger-go/internal/model"
)

var ErrUpstream = errors.New("llm service request failed")

// answerTimeout bounds the wait on the model answer call. Context trimming
// and retrieval calls use the default transport timeout.
const answerTimeout = 300 * time.Second

// Client calls the LLM microservice over HTTP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	answerClient *http.Client
}

// NewClient creates a Client for the given service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{},
		answerClient: &http.Client{Timeout: answerTimeout},
	}
}

type answerRequest struct {
	Context []model.MessageData `json:"context"`
}

type answerResponse struct {
	Message model.MessageData `json:"message"`
}

type contextRequest struct {
	Messages []model.MessageData `json:"messages"`
	NTokens  int                 `json:"n_tokens"`
}

type contextResponse struct {
	Context []model.MessageData `json:"context"`
}

// GetAnswer sends the (possibly trimmed) history to the model and returns
// one reply message.
func (c *Client) GetAnswer(ctx context.Context, history []model.MessageData) (model.MessageData, error) {
	var resp answerResponse
	err := c.post(ctx, c.answerClient, "/get_answer", answerRequest{Context: history}, &resp)
	if err != nil {
		return model.MessageData{}, err
	}
	return resp.Message, nil
}

// GetContext asks the model service to fit the history within maxTokens.
// The trimming policy is owned by the service; this is a pass-through.
func (c *Client) GetContext(ctx context.Context, history []model.MessageData, maxTokens int) ([]model.MessageData, error) {
	var resp contextResponse
	err := c.post(ctx, c.httpClient, "/get_context", contextRequest{Messages: history, NTokens: maxTokens}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Context, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	return nil
}
