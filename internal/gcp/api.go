package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Tokens provides bearer tokens for control-plane calls. Implemented by
// TokenSource; faked in tests.
type Tokens interface {
	Token(ctx context.Context) (string, error)
}

// apiError is the standard googleapis error envelope.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

func isNotFound(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// doJSON performs an authenticated JSON request and decodes the response into
// out when out is non-nil. Non-2xx responses are returned as *apiError.
func doJSON(ctx context.Context, client *http.Client, tokens Tokens, method, url string, in, out any) error {
	token, err := tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error.Message != "" {
			return &apiError{Code: resp.StatusCode, Message: envelope.Error.Message}
		}
		return &apiError{Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// operation is the googleapis long-running operation envelope.
type operation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// pollOperation polls an operation until it completes or ctx expires.
func pollOperation(ctx context.Context, client *http.Client, tokens Tokens, baseURL string, op *operation, interval time.Duration) error {
	for {
		if op.Done {
			if op.Error != nil {
				return &apiError{Code: op.Error.Code, Message: op.Error.Message}
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for operation %s: %w", op.Name, ctx.Err())
		case <-time.After(interval):
		}

		next := &operation{}
		if err := doJSON(ctx, client, tokens, http.MethodGet, baseURL+"/v2/"+op.Name, nil, next); err != nil {
			return fmt.Errorf("poll operation %s: %w", op.Name, err)
		}
		op = next
	}
}
