package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/facebot/internal/config"
)

// APIError is a response of the Bot API with ok=false.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Client sends messages through the Bot API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.BotConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/") + "/bot" + cfg.Token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	return c.postForm(ctx, "sendMessage", form)
}

// SendPhotoURL sends a photo the Bot API fetches from photoURL itself.
func (c *Client) SendPhotoURL(ctx context.Context, chatID int64, photoURL, caption string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("photo", photoURL)
	form.Set("caption", caption)
	return c.postForm(ctx, "sendPhoto", form)
}

// SendPhotoBytes uploads the photo as multipart form data.
func (c *Client) SendPhotoBytes(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("photo", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.post(ctx, "sendPhoto", w.FormDataContentType(), &body)
}

func (c *Client) postForm(ctx context.Context, method string, form url.Values) error {
	return c.post(ctx, method, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bot api %s: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &result); err != nil || !result.OK {
		desc := result.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: desc}
	}
	return nil
}
