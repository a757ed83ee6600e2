package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client 轻量 HTTP 客户端
// Webhook 投递等出站调用共用：默认头、超时、对 5xx 的退避重试。
type Client struct {
	hc      *http.Client
	timeout time.Duration
	headers map[string]string
	retries int
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置单次请求超时
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.hc.Timeout = timeout
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRetries 设置 5xx 与网络错误的最大重试次数
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		c.retries = retries
	}
}

// NewClient 创建客户端
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: defaultTimeout},
		timeout: defaultTimeout,
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := c.headers["User-Agent"]; !ok {
		c.headers["User-Agent"] = "hros/1.0"
	}
	return c
}

// Do 执行请求，5xx 和网络错误按线性退避重试
// 4xx 是调用方的问题，不重试。
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			// 重试前重置请求体，否则上一次发送已把它读空
			body, berr := req.GetBody()
			if berr != nil {
				return resp, berr
			}
			req.Body = body
		}

		resp, err = c.hc.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if attempt >= c.retries {
			return resp, err
		}
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
}

// Get 发送 GET 请求
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 GET 请求失败: %w", err)
	}
	return c.Do(ctx, req)
}

// Post 发送 POST 请求
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("创建 POST 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

// GetJSON 发送 GET 请求并把 JSON 响应解到 result
func (c *Client) GetJSON(ctx context.Context, url string, result interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("GET 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP 请求返回错误状态: %d", resp.StatusCode)
	}
	return decodeJSON(resp.Body, result)
}

// PostJSON 发送 JSON 请求体，result 为 nil 时丢弃响应体
func (c *Client) PostJSON(ctx context.Context, url string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	resp, err := c.Post(ctx, url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("POST 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP 请求返回错误状态: %d", resp.StatusCode)
	}
	if result == nil {
		return nil
	}
	return decodeJSON(resp.Body, result)
}

func decodeJSON(r io.Reader, result interface{}) error {
	if err := json.NewDecoder(r).Decode(result); err != nil {
		return fmt.Errorf("解析 JSON 响应失败: %w", err)
	}
	return nil
}
