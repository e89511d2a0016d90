// Package aiclient is the request/response client for the AI backend.
// It carries no retry logic; retries belong to the job queue.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/entry"
)

// ErrUnreachable wraps transport-level failures (connection refused, DNS,
// timeout) so callers can tell them apart from backend-reported errors.
var ErrUnreachable = errors.New("ai backend unreachable")

const maxTags = 8

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Summary is the structured summarize response: a title plus up to five
// bullet points.
type Summary = entry.Summary

// Health reports whether the backend answers on /health, and the service
// name it advertises if any.
func (c *Client) Health(ctx context.Context) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, "", err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var body struct {
		OK      bool   `json:"ok"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, "", fmt.Errorf("decode health response: %w", err)
	}
	return body.OK, body.Service, nil
}

// Transcribe uploads the audio file behind audioURI as multipart form data
// and returns the transcript text. Empty text is an error.
func (c *Client) Transcribe(ctx context.Context, audioURI string) (string, error) {
	f, err := os.Open(audioURI)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioURI))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	var body struct {
		Transcript string `json:"transcript"`
		Text       string `json:"text"`
	}
	if err := c.do(req, &body); err != nil {
		return "", err
	}

	text := body.Transcript
	if text == "" {
		text = body.Text
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("transcription returned empty text")
	}
	return text, nil
}

// Summarize asks the backend for a title plus bullets. A missing title
// means the response is unusable; bullets beyond five are dropped.
func (c *Client) Summarize(ctx context.Context, transcript string) (Summary, error) {
	req, err := c.jsonRequest(ctx, "/summarize", map[string]string{"transcript": transcript})
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	if err := c.do(req, &sum); err != nil {
		return Summary{}, err
	}
	if strings.TrimSpace(sum.Title) == "" {
		return Summary{}, errors.New("summarize returned no title")
	}
	if len(sum.Bullets) > 5 {
		sum.Bullets = sum.Bullets[:5]
	}
	return sum, nil
}

// SuggestTags returns zero or more short lowercase tags. An empty result
// is a valid "no suggestions" outcome.
func (c *Client) SuggestTags(ctx context.Context, transcript, summary string) ([]string, error) {
	payload := map[string]string{"transcript": transcript}
	if summary != "" {
		payload["summary"] = summary
	}
	req, err := c.jsonRequest(ctx, "/tags", payload)
	if err != nil {
		return nil, err
	}

	var body struct {
		Tags []string `json:"tags"`
	}
	if err := c.do(req, &body); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(body.Tags))
	for _, t := range body.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out, nil
}

func (c *Client) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return req, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do executes the request and decodes a 2xx body into out. Non-2xx bodies
// are decoded as {error} or {message}.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("ai backend: %s", msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
