package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prizzzz/leaseIQ/config"
	"github.com/prizzzz/leaseIQ/pkg/logger"
)

// MineruOCR sends the presigned PDF URL to the MinerU extraction API and
// reads the markdown it produces.
type MineruOCR struct {
	config     *config.MineruConfig
	httpClient *http.Client
	interval   time.Duration
}

// MineruTaskRequest represents the request to create an extraction task
type MineruTaskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	DataID       string `json:"data_id,omitempty"`
}

// MineruTaskResponse represents the response from task creation
type MineruTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// MineruTaskStatusResponse represents the task status query response
type MineruTaskStatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	TraceID string `json:"trace_id"`
	Data    struct {
		TaskID          string `json:"task_id"`
		State           string `json:"state"` // pending, running, done, failed, converting
		FullZipURL      string `json:"full_zip_url,omitempty"`
		ErrorMsg        string `json:"err_msg,omitempty"`
		ExtractProgress struct {
			ExtractedPages int `json:"extracted_pages"`
			TotalPages     int `json:"total_pages"`
		} `json:"extract_progress,omitempty"`
	} `json:"data"`
}

func NewMineruOCR(cfg *config.MineruConfig) *MineruOCR {
	interval := time.Duration(cfg.PollInterval) * time.Second
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &MineruOCR{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		interval: interval,
	}
}

func (s *MineruOCR) Name() string { return "mineru" }

// ExtractText creates a task, polls it until done and returns the cleaned markdown.
func (s *MineruOCR) ExtractText(ctx context.Context, doc Document) (string, error) {
	if doc.URL == "" {
		return "", errors.New("mineru needs a presigned document URL; enable object storage")
	}

	task, err := s.CreateTask(ctx, doc.URL, doc.Name)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "mineru task created", "task_id", task.Data.TaskID)

	zipURL, err := s.waitForResult(ctx, task.Data.TaskID)
	if err != nil {
		return "", err
	}

	raw, err := s.FetchZipText(ctx, zipURL)
	if err != nil {
		return "", err
	}
	return PostProcess(raw)
}

func (s *MineruOCR) waitForResult(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.config.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := s.GetTaskStatus(ctx, taskID)
		if err != nil {
			logger.Warn(ctx, "mineru poll failed", "attempt", attempt, "error", err)
			continue
		}

		switch status.Data.State {
		case "done":
			if status.Data.FullZipURL == "" {
				return "", errors.New("mineru task finished without a result archive")
			}
			return status.Data.FullZipURL, nil
		case "failed":
			return "", fmt.Errorf("mineru task failed: %s", status.Data.ErrorMsg)
		case "running":
			p := status.Data.ExtractProgress
			logger.Debug(ctx, "mineru progress", "extracted_pages", p.ExtractedPages, "total_pages", p.TotalPages)
		}
	}
	return "", fmt.Errorf("mineru task %s: polling timed out after %d attempts", taskID, s.config.MaxPolls)
}

// CreateTask creates a new extraction task
func (s *MineruOCR) CreateTask(ctx context.Context, pdfURL, dataID string) (*MineruTaskResponse, error) {
	body, err := json.Marshal(MineruTaskRequest{
		URL:          pdfURL,
		ModelVersion: s.config.ModelVersion,
		DataID:       dataID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL+"/extract/task", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result MineruTaskResponse
	if err := s.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("MinerU API error: %s", result.Message)
	}
	return &result, nil
}

// GetTaskStatus queries the status of a task
func (s *MineruOCR) GetTaskStatus(ctx context.Context, taskID string) (*MineruTaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/extract/task/%s", s.config.APIURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result MineruTaskStatusResponse
	if err := s.do(req, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("MinerU API error: %s", result.Message)
	}
	return &result, nil
}

func (s *MineruOCR) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}
	return nil
}

// FetchZipText downloads the result archive and returns its text: full.md,
// else the first markdown file, else the text items of content_list.json.
func (s *MineruOCR) FetchZipText(ctx context.Context, zipURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download ZIP: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download ZIP: status %d", resp.StatusCode)
	}

	zipData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ZIP: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return "", fmt.Errorf("failed to open ZIP: %w", err)
	}

	var fullMD, anyMD, contentList *zip.File
	for _, f := range zr.File {
		switch {
		case strings.HasSuffix(f.Name, "full.md"):
			fullMD = f
		case strings.HasSuffix(f.Name, ".md") && anyMD == nil:
			anyMD = f
		case strings.HasSuffix(f.Name, "content_list.json"):
			contentList = f
		}
	}

	switch {
	case fullMD != nil:
		return readZipFile(fullMD)
	case anyMD != nil:
		return readZipFile(anyMD)
	case contentList != nil:
		raw, err := readZipFile(contentList)
		if err != nil {
			return "", err
		}
		return contentListText(raw)
	}
	return "", errors.New("no markdown or content list found in ZIP")
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return string(content), nil
}

func contentListText(raw string) (string, error) {
	var items []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return "", fmt.Errorf("failed to parse content list: %w", err)
	}

	var b strings.Builder
	for _, item := range items {
		if item.Text == "" {
			continue
		}
		b.WriteString(item.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
