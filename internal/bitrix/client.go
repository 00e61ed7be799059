package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 25 * time.Second,
		},
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Call posts a method payload and returns the raw response body. Shape
// normalization is left to the caller via Normalize.
func (c *Client) Call(ctx context.Context, method string, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	method = strings.TrimSpace(method)
	if method == "" {
		return nil, fmt.Errorf("method is empty")
	}
	if !strings.HasSuffix(method, ".json") {
		method += ".json"
	}

	var bodyBytes []byte
	var err error
	if payload == nil {
		bodyBytes = []byte(`{}`)
	} else {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res := Normalize(raw)
		if res.Err != nil {
			return nil, *res.Err
		}
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(raw))
	}

	return raw, nil
}

// CallResult runs a method and returns its normalized result value.
func (c *Client) CallResult(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	raw, err := c.Call(ctx, method, payload)
	if err != nil {
		return nil, err
	}
	res := Normalize(raw)
	if res.Err != nil {
		return nil, *res.Err
	}
	return res.Value, nil
}

// CallUpdate runs a mutation whose success answer is the literal true (bare
// or under "result"). Any error envelope or unrecognized shape is a failure.
func (c *Client) CallUpdate(ctx context.Context, method string, payload any) error {
	raw, err := c.Call(ctx, method, payload)
	if err != nil {
		return err
	}
	res := Normalize(raw)
	if res.Err != nil {
		return *res.Err
	}
	if !res.IsTrue() {
		return fmt.Errorf("unexpected %s response: %s", method, string(res.Raw))
	}
	return nil
}

// GetEntity fetches a single record (crm.contact.get, crm.deal.get, ...) and
// returns it with the result envelope and batch wrapper stripped.
func (c *Client) GetEntity(ctx context.Context, method, id string) (Entity, error) {
	value, err := c.CallResult(ctx, method, map[string]any{"ID": id})
	if err != nil {
		return nil, err
	}
	var entity Entity
	if err := json.Unmarshal(value, &entity); err != nil {
		return nil, fmt.Errorf("unmarshal %s result: %w; raw=%s", method, err, string(value))
	}
	return entity, nil
}

// ListAll pages through a list method until the server stops returning a
// next offset. Transient failures on a page are retried with backoff.
func ListAll[T any](ctx context.Context, c *Client, method string, params map[string]any) ([]T, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}

	var collected []T
	start := 0
	for {
		payload["start"] = start

		var page ListResponse[T]
		err := callWithRetry(ctx, 3, func(c2 context.Context) error {
			reqCtx, cancel := context.WithTimeout(c2, 25*time.Second)
			defer cancel()
			raw, callErr := c.Call(reqCtx, method, payload)
			if callErr != nil {
				return callErr
			}
			var apiErr APIError
			if uErr := json.Unmarshal(raw, &apiErr); uErr == nil && !apiErr.IsZero() {
				return apiErr
			}
			page = ListResponse[T]{}
			if uErr := json.Unmarshal(raw, &page); uErr != nil {
				return fmt.Errorf("unmarshal %s page: %w", method, uErr)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s start=%d: %w", method, start, err)
		}

		collected = append(collected, page.Result...)
		if page.Next == nil {
			return collected, nil
		}
		start = *page.Next
	}
}
