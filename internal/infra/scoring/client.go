// Package scoring talks to the remote scoring service over HTTP.
package scoring

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

	"competition-session-service/internal/domain"
	"github.com/google/uuid"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReason         = "X-Submission-Reason"
	maxErrorBody         = 512
)

// idempotencyNamespace derives a stable key per competition, so a retried
// submission is recognised by the scoring service.
var idempotencyNamespace = uuid.MustParse("6f1c3a52-9d1e-4f0b-8a53-2b7d0c6f4e19")

// Client posts submissions and reports to the scoring service.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
	}
}

// Submit posts the payload to {base}/competitions/{id}/submissions and returns
// the response body as the scoring record.
func (c *Client) Submit(ctx context.Context, competitionID string, payload domain.SubmissionPayload, reason domain.SubmitReason) (json.RawMessage, error) {
	if competitionID == "" {
		return nil, errors.New("competition id required")
	}
	u := c.BaseURL + "/competitions/" + competitionID + "/submissions"
	req, err := c.newRequest(ctx, u, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerIdempotencyKey, IdempotencyKey(competitionID))
	req.Header.Set(headerReason, string(reason))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read submission response: %w", err)
	}
	if !accepted(resp.StatusCode) {
		return nil, httpErr("submit competition", resp.Status, body)
	}
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(body), nil
}

// Report posts a question report to {base}/reports.
func (c *Client) Report(ctx context.Context, report domain.Report) error {
	req, err := c.newRequest(ctx, c.BaseURL+"/reports", report)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !accepted(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return httpErr("report question", resp.Status, body)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, u string, v interface{}) (*http.Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// IdempotencyKey is the key sent with every submission of a competition.
func IdempotencyKey(competitionID string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(competitionID)).String()
}

func accepted(code int) bool {
	return code == http.StatusOK || code == http.StatusCreated || code == http.StatusAccepted || code == http.StatusNoContent
}

func httpErr(op, status string, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%s: %s", op, status)
	}
	return fmt.Errorf("%s: %s: %s", op, status, msg)
}
