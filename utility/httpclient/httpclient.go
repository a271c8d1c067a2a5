/*
Package httpclient cung cấp HTTP JSON client đơn giản để gọi API.
Mọi request nhận context để timeout/hủy của job lan xuống tầng network.
*/
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HttpClient struct chứa thông tin cấu hình cho HTTP client
type HttpClient struct {
	BaseURL    string            // Base URL của API (ví dụ: "https://erp.example.com/api")
	HTTPClient *http.Client      // HTTP client từ standard library
	Headers    map[string]string // Custom headers (Authorization, ...)
}

// StatusError là lỗi khi server trả về mã không phải 2xx
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "API trả về mã lỗi: " + e.Status
	}
	return fmt.Sprintf("API trả về mã lỗi: %s: %s", e.Status, e.Body)
}

// NewHttpClient tạo một HttpClient mới với base URL và timeout
func NewHttpClient(baseURL string, timeout time.Duration) *HttpClient {
	return &HttpClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Headers: make(map[string]string),
	}
}

// SetHeader thêm hoặc cập nhật header cho tất cả request sau đó
func (c *HttpClient) SetHeader(key, value string) {
	c.Headers[key] = value
}

// makeRequest tạo và gửi yêu cầu HTTP chung.
// body khác nil được marshal thành JSON; params được thêm vào query string.
func (c *HttpClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}, params map[string]string) (*http.Response, error) {
	fullURL, err := url.Parse(c.BaseURL + endpoint)
	if err != nil {
		return nil, err
	}

	if params != nil {
		query := fullURL.Query()
		for key, value := range params {
			query.Set(key, value)
		}
		fullURL.RawQuery = query.Encode()
	}

	var requestBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		requestBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), requestBody)
	if err != nil {
		return nil, err
	}
	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.HTTPClient.Do(req)
}

// GET gửi yêu cầu HTTP GET
func (c *HttpClient) GET(ctx context.Context, endpoint string, params map[string]string) (*http.Response, error) {
	return c.makeRequest(ctx, http.MethodGet, endpoint, nil, params)
}

// POST gửi yêu cầu HTTP POST với body JSON
func (c *HttpClient) POST(ctx context.Context, endpoint string, body interface{}, params map[string]string) (*http.Response, error) {
	return c.makeRequest(ctx, http.MethodPost, endpoint, body, params)
}

// ParseJSONResponse đọc response body vào v.
// Trả về *StatusError nếu status code không phải 2xx. Hàm luôn đóng response body.
func ParseJSONResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bytes.TrimSpace(raw))}
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
