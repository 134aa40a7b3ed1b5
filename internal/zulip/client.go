package zulip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zwop/internal/ports"
	"zwop/internal/types"

	"github.com/goccy/go-json"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
	maxResponse    = 1 << 20
)

// APIError is a non-success answer from Zulip.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("zulip: %s (%s, http %d)", e.Msg, e.Code, e.Status)
	}
	return fmt.Sprintf("zulip: %s (http %d)", e.Msg, e.Status)
}

// Client talks to one Zulip site as one bot.
type Client struct {
	site   string
	email  string
	apiKey string
	http   *http.Client
}

func NewClient(bot types.BotConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		site:   strings.TrimRight(bot.Site, "/"),
		email:  bot.Email,
		apiKey: bot.APIKey,
		http:   httpClient,
	}
}

var _ ports.Messenger = (*Client)(nil)

func (c *Client) SendMessage(ctx context.Context, stream, topic, content string) (types.SendResult, error) {
	form := url.Values{
		"type":    {"stream"},
		"to":      {stream},
		"topic":   {topic},
		"content": {content},
	}
	var out types.SendResult
	err := c.do(ctx, http.MethodPost, "/messages", formBody(form), &out)
	return out, err
}

func (c *Client) UpdateMessage(ctx context.Context, messageID int64, topic, content string, mode types.PropagateMode) (map[string]any, error) {
	form := url.Values{"propagate_mode": {string(mode)}}
	if topic != "" {
		form.Set("topic", topic)
	}
	if content != "" {
		form.Set("content", content)
	}
	out := map[string]any{}
	err := c.do(ctx, http.MethodPatch, "/messages/"+strconv.FormatInt(messageID, 10), formBody(form), &out)
	return out, err
}

func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (types.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("filename", filename)
	if err != nil {
		return types.UploadResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return types.UploadResult{}, err
	}
	if err := mw.Close(); err != nil {
		return types.UploadResult{}, err
	}
	var out struct {
		types.UploadResult
		URL string `json:"url"`
	}
	err = c.do(ctx, http.MethodPost, "/user_uploads", body{r: &buf, contentType: mw.FormDataContentType()}, &out)
	if out.URI == "" {
		out.URI = out.URL
	}
	return out.UploadResult, err
}

func (c *Client) GetStreamTopics(ctx context.Context, stream string) ([]types.Topic, error) {
	var id struct {
		StreamID int64 `json:"stream_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_stream_id?"+url.Values{"stream": {stream}}.Encode(), body{}, &id); err != nil {
		return nil, err
	}
	var out struct {
		Topics []types.Topic `json:"topics"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/me/%d/topics", id.StreamID), body{}, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

type body struct {
	r           io.Reader
	contentType string
}

func formBody(v url.Values) body {
	return body{r: strings.NewReader(v.Encode()), contentType: "application/x-www-form-urlencoded"}
}

// do sends the request and decodes a success answer into out.
func (c *Client) do(ctx context.Context, method, path string, b body, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.site+apiPrefix+path, b.r)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.apiKey)
	if b.contentType != "" {
		req.Header.Set("Content-Type", b.contentType)
	}
	req.Header.Set("User-Agent", "zwop")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("zulip %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return fmt.Errorf("zulip %s %s: read response: %w", method, path, err)
	}

	var status struct {
		Result string `json:"result"`
		Msg    string `json:"msg"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return &APIError{Status: resp.StatusCode, Msg: "invalid response body"}
	}
	if resp.StatusCode >= 300 || status.Result != "success" {
		msg := status.Msg
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: status.Code, Msg: msg}
	}
	return json.Unmarshal(raw, out)
}
