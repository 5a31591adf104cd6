package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"routing-simulator/internal/types"
)

// ErrStatus is returned when the remote side answers with a non-2xx status.
var ErrStatus = errors.New("unexpected response status")

// StatusError carries the status code and a short body excerpt.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}

const maxErrorBody = 512

// Headers returns the credential headers shared by all outbound calls.
func Headers(session types.SessionContext) map[string]string {
	return map[string]string{
		"api-key":       session.APIKey,
		"x-profile-id":  session.ProfileID,
		"x-merchant-id": session.MerchantID,
	}
}

// Do sends body (if not nil) as JSON and decodes a 2xx response into out (if not nil).
func Do(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigFastest.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt := data
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return &StatusError{Code: resp.StatusCode, Body: string(excerpt)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.ConfigFastest.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// PostJSON is Do with POST.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	return Do(ctx, client, http.MethodPost, url, headers, body, out)
}

// GetJSON is Do with GET and no body.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	return Do(ctx, client, http.MethodGet, url, headers, nil, out)
}
