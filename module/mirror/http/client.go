package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zerocat/extension-mirror/module/mirror/http/modifier"
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client is a util for common HTTP operations, such Get, Post and Put.
// Use Do instead if those methods can not meet your requirement
type Client struct {
	modifiers []modifier.Modifier
	client    *http.Client
}

// NewClient creates an instance of Client.
// Use a retrying client from NewHTTPClient if c is nil.
// Modifiers modify the request before sending it.
func NewClient(c *http.Client, modifiers ...modifier.Modifier) *Client {
	client := &Client{
		client: c,
	}
	if client.client == nil {
		client.client = NewHTTPClient()
	}
	if len(modifiers) > 0 {
		client.modifiers = modifiers
	}
	return client
}

// Do ...
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for _, modifier := range c.modifiers {
		if err := modifier.Modify(req); err != nil {
			return nil, err
		}
	}
	return c.client.Do(req)
}

// Get decodes the JSON response body into v[0] when given.
func (c *Client) Get(ctx context.Context, url string, v ...interface{}) error {
	data, err := c.GetRaw(ctx, url)
	if err != nil {
		return err
	}
	return decode(data, v)
}

// GetRaw returns the response body untouched.
func (c *Client) GetRaw(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// Post sends body as JSON, or as is when it is an io.Reader.
func (c *Client) Post(ctx context.Context, url string, body interface{}, v ...interface{}) error {
	return c.send(ctx, http.MethodPost, url, body, v)
}

// PostContent sends body with an explicit content type.
func (c *Client) PostContent(ctx context.Context, url, contentType string, body io.Reader, v ...interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	data, err := c.do(req)
	if err != nil {
		return err
	}
	return decode(data, v)
}

// Put ...
func (c *Client) Put(ctx context.Context, url string, body interface{}, v ...interface{}) error {
	return c.send(ctx, http.MethodPut, url, body, v)
}

func (c *Client) send(ctx context.Context, method, url string, body interface{}, v []interface{}) error {
	var reader io.Reader
	if body != nil {
		if r, ok := body.(io.Reader); ok {
			reader = r
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	data, err := c.do(req)
	if err != nil {
		return err
	}
	return decode(data, v)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: string(data)}
	}

	return data, nil
}

func decode(data []byte, v []interface{}) error {
	if len(v) == 0 || v[0] == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v[0])
}
