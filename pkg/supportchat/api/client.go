// Package api is the HTTP client for the support chat backend: message
// history and sending, history deletion, session status and new sessions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tourbook-chat/pkg/supportchat"
)

var (
	// ErrUnauthorized means the backend did not accept the credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedResponse means the body was not the expected JSON shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// WriteRejectedError is returned when the backend refuses a write because the
// support session is closed or deleted.
type WriteRejectedError struct {
	Status  supportchat.SessionStatus
	Message string
}

func (e *WriteRejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("write rejected: session %s", e.Status)
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("support chat api: status %d, body: %s", e.Code, e.Body)
}

// TokenSource returns the bearer token for the current user, or "".
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

const basePath = "/api/support/v1"

type Client struct {
	BaseURL string
	Token   TokenSource
	Client  *http.Client
}

// NewClient builds a client. A zero timeout leaves requests bounded only by
// their context.
func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

// History fetches the conversation for mode.
func (c *Client) History(ctx context.Context, mode supportchat.Mode) ([]supportchat.Message, error) {
	var resp supportchat.HistoryResponse
	q := url.Values{"mode": {string(mode)}}
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: success=false", ErrMalformedResponse)
	}
	return toMessages(resp.Messages), nil
}

// SendResult carries whatever the backend confirmed for a send.
type SendResult struct {
	Message  *supportchat.Message
	Messages []supportchat.Message
}

func (c *Client) Send(ctx context.Context, mode supportchat.Mode, text string) (SendResult, error) {
	var resp supportchat.SendResponse
	body := supportchat.SendRequest{Mode: mode, Text: text}
	if err := c.do(ctx, http.MethodPost, "/messages", body, &resp); err != nil {
		return SendResult{}, err
	}
	if !resp.Success {
		return SendResult{}, fmt.Errorf("%w: success=false", ErrMalformedResponse)
	}

	var out SendResult
	if resp.Message != nil {
		if resp.Message.ID == "" {
			return SendResult{}, fmt.Errorf("%w: confirmed message without id", ErrMalformedResponse)
		}
		m := resp.Message.ToMessage()
		out.Message = &m
	}
	out.Messages = toMessages(resp.Messages)
	return out, nil
}

func (c *Client) ClearHistory(ctx context.Context, mode supportchat.Mode) error {
	var resp supportchat.SuccessResponse
	q := url.Values{"mode": {string(mode)}}
	if err := c.do(ctx, http.MethodDelete, "/messages?"+q.Encode(), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("clear history: backend reported failure")
	}
	return nil
}

// SessionStatus returns the current support session, or nil when none exists.
func (c *Client) SessionStatus(ctx context.Context) (*supportchat.SessionInfo, error) {
	var resp supportchat.SessionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/session", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Session, nil
}

func (c *Client) StartSession(ctx context.Context) error {
	var resp supportchat.SuccessResponse
	if err := c.do(ctx, http.MethodPost, "/session", nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("start session: backend reported failure")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+basePath+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("support chat request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return rejected(raw)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func rejected(raw []byte) error {
	var body supportchat.RejectedResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return &WriteRejectedError{Status: supportchat.SessionUnknown}
	}
	status := supportchat.SessionUnknown
	if body.Session != nil {
		status = supportchat.ParseSessionStatus(string(body.Session.Status))
	}
	return &WriteRejectedError{Status: status, Message: body.Message}
}

func toMessages(wire []supportchat.WireMessage) []supportchat.Message {
	out := make([]supportchat.Message, 0, len(wire))
	for _, w := range wire {
		if w.ID == "" {
			continue
		}
		out = append(out, w.ToMessage())
	}
	return out
}
