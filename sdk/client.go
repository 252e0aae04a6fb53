package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Client HTTP 客户端，用于与服务端的 REST 接口通信
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var (
	envOnce   sync.Once
	envLoaded bool
)

// loadEnv 按候选路径查找并加载 .env（找不到时允许纯环境变量配置）
func loadEnv() {
	envOnce.Do(func() {
		possiblePaths := []string{".env", "../.env", "../../.env"}
		var envPath string
		for _, path := range possiblePaths {
			absPath, err := filepath.Abs(path)
			if err != nil {
				continue
			}
			if _, err := os.Stat(absPath); err == nil {
				envPath = absPath
				break
			}
		}
		if envPath == "" {
			envLoaded = true
			return
		}
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("[novelhub-sdk] 加载环境变量文件失败: %v", err)
			return
		}
		log.Printf("[novelhub-sdk] 已加载环境变量文件: %s", envPath)
		envLoaded = true
	})
}

// NewClientFromEnv 从环境变量构造客户端（NOVELHUB_BASE_URL，默认本机服务端口）
func NewClientFromEnv() *Client {
	loadEnv()
	baseURL := os.Getenv("NOVELHUB_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:28080"
	}
	return NewClient(baseURL)
}

// UploadResult 上传响应
type UploadResult struct {
	TaskID   string `json:"task_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Status   string `json:"status"`
}

// Upload 上传文件内容并创建处理任务
func (c *Client) Upload(ctx context.Context, fileName string, content []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/tasks/upload", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResult 任务列表响应
type ListResult struct {
	Tasks    []Task `json:"tasks"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// ListOptions 列表查询条件
type ListOptions struct {
	Page     int
	PageSize int
	Status   TaskStatus // 为空则不过滤
	SortBy   string     // uploaded_at | file_name | status
	Order    string     // asc | desc
}

// List 分页查询任务列表
func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.SortBy != "" {
		q.Set("sort_by", opts.SortBy)
	}
	if opts.Order != "" {
		q.Set("order", opts.Order)
	}

	endpoint := fmt.Sprintf("%s/api/v1/tasks?%s", c.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var result ListResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get 查询任务详情
func (c *Client) Get(ctx context.Context, taskID string) (*Task, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tasks/%s", c.BaseURL, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var result Task
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete 删除任务
func (c *Client) Delete(ctx context.Context, taskID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/tasks/%s", c.BaseURL, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, nil)
}

// Retry 重试终态任务
func (c *Client) Retry(ctx context.Context, taskID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/tasks/%s/retry", c.BaseURL, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, nil)
}

// Statistics 任务统计
type Statistics struct {
	Total           int64    `json:"total"`
	Pending         int64    `json:"pending"`
	Processing      int64    `json:"processing"`
	Completed       int64    `json:"completed"`
	Failed          int64    `json:"failed"`
	AvgProcessingMs *float64 `json:"avg_processing_time_ms"`
	SuccessRate     *float64 `json:"success_rate"`
}

// GetStatistics 查询任务统计
func (c *Client) GetStatistics(ctx context.Context) (*Statistics, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tasks/statistics", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var result Statistics
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do 发送请求并解码响应；非 2xx 状态返回带响应体的错误
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
