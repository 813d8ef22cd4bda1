// Package catalog 是远端内容目录 REST 服务的客户端。
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pairStudio/internal/content"
)

const (
	contentsPath = "contents"
	pairsPath    = "content-pairs"
)

// APIError 描述目录服务返回的非 2xx 响应。
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: catalog status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: catalog status %d: %s", e.Op, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the catalog.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 封装对目录服务的请求。
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New 校验 BaseURL 并构造客户端。
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("catalog base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse catalog base url: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		http:    httpClient,
	}, nil
}

// SearchQuery 对应目录搜索接口的查询参数。
type SearchQuery struct {
	Limit       int
	Offset      int
	Search      string
	ElementType content.ElementType
}

// SearchResult is the `{data, pagination}` envelope of the search call.
type SearchResult struct {
	Data       []content.Item `json:"data"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

// SearchContents lists catalog items.
func (c *Client) SearchContents(ctx context.Context, q SearchQuery) (SearchResult, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if s := strings.TrimSpace(q.Search); s != "" {
		params.Set("search", s)
	}
	if q.ElementType != "" {
		params.Set("elementType", string(q.ElementType))
	}

	var result SearchResult
	if err := c.doJSON(ctx, "search contents", http.MethodGet, contentsPath+"?"+params.Encode(), nil, &result); err != nil {
		return SearchResult{}, err
	}
	return result, nil
}

// NewContent 是创建内容条目时的公共字段。
type NewContent struct {
	ElementType content.ElementType `json:"elementType"`
	Content     string              `json:"content"`
	Metadata    map[string]any      `json:"contentMetadata"`
}

// CreateTextContent registers a plain text item.
func (c *Client) CreateTextContent(ctx context.Context, in NewContent) (content.Item, error) {
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	var item content.Item
	if err := c.doJSON(ctx, "create content", http.MethodPost, contentsPath, in, &item); err != nil {
		return content.Item{}, err
	}
	return item, nil
}

// CreatePair creates a pair or, with UseMixedContents, a sub-pair.
func (c *Client) CreatePair(ctx context.Context, req content.PairRequest) (content.Pair, error) {
	var pair content.Pair
	if err := c.doJSON(ctx, "create pair", http.MethodPost, pairsPath, req, &pair); err != nil {
		return content.Pair{}, err
	}
	return pair, nil
}

// UpdatePair replaces both sides (and metadata) of an existing pair.
func (c *Client) UpdatePair(ctx context.Context, id int64, req content.PairRequest) (content.Pair, error) {
	var pair content.Pair
	if err := c.doJSON(ctx, "update pair", http.MethodPut, pairPath(id), req, &pair); err != nil {
		return content.Pair{}, err
	}
	return pair, nil
}

// GetPair 读取配对及其解析后的内容。
func (c *Client) GetPair(ctx context.Context, id int64) (content.Pair, error) {
	var pair content.Pair
	if err := c.doJSON(ctx, "get pair", http.MethodGet, pairPath(id), nil, &pair); err != nil {
		return content.Pair{}, err
	}
	return pair, nil
}

// DeletePair 删除配对；子配对也通过该接口删除。
func (c *Client) DeletePair(ctx context.Context, id int64) error {
	return c.doJSON(ctx, "delete pair", http.MethodDelete, pairPath(id), nil, nil)
}

func pairPath(id int64) string {
	return pairsPath + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
