package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/logging"
)

// Client talks to the remote analysis and stem separation service.
type Client struct {
	apiURL    string
	apiKey    string
	outputDir string // shared volume mount point
	http      *http.Client
	log       logging.LeveledLogger

	retryDelay time.Duration
}

// NewClient creates an analysis API client.
func NewClient(apiURL, apiKey, outputDir string, log logging.LeveledLogger) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		outputDir:  outputDir,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log,
		retryDelay: 5 * time.Second,
	}
}

// Request asks for a song to be analysed.
type Request struct {
	AudioPath     string `json:"audio_path"`
	SeparateStems bool   `json:"separate_stems"`
}

type submitResp struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type queryResp struct {
	Data []taskResult `json:"data"`
	Code int          `json:"code"`
}

type taskResult struct {
	TaskID string `json:"task_id"`
	Status int    `json:"status"` // 0=running, 1=success, 2=failed
	Result string `json:"result"` // analysis JSON document
	Error  string `json:"error"`
}

// WaitForHealthy blocks until the service responds to health checks.
func (c *Client) WaitForHealthy(ctx context.Context) error {
	c.log.Info("Waiting for analysis service to be ready...")
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/health", nil)
		if err != nil {
			return fmt.Errorf("create health request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				c.log.Info("Analysis service is healthy")
				return nil
			}
		}

		c.log.Debugf("Analysis service not ready, retrying in %s", c.retryDelay)
		if err := sleep(ctx, c.retryDelay); err != nil {
			return err
		}
	}
}

// Submit queues an analysis task and returns its ID.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, "/release_task", body)
	if err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	defer resp.Body.Close()

	var result submitResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Code != 200 {
		return "", fmt.Errorf("API error (code %d): %s", result.Code, result.Error)
	}
	if result.Data.TaskID == "" {
		return "", fmt.Errorf("API returned no task id")
	}
	return result.Data.TaskID, nil
}

// PollUntilDone polls for task completion and returns the analysis with
// stem files resolved to local paths.
func (c *Client) PollUntilDone(ctx context.Context, taskID string, interval time.Duration) (*Analysis, error) {
	reqBody, _ := json.Marshal(map[string][]string{
		"task_id_list": {taskID},
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.post(ctx, "/query_result", reqBody)
		if err != nil {
			c.log.Warnf("Poll error: %v, retrying...", err)
			if err := sleep(ctx, interval); err != nil {
				return nil, err
			}
			continue
		}

		var result queryResp
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			c.log.Warnf("Decode error: %v, retrying...", err)
			if err := sleep(ctx, interval); err != nil {
				return nil, err
			}
			continue
		}

		if len(result.Data) > 0 {
			task := result.Data[0]
			switch task.Status {
			case 1:
				return c.finish(ctx, taskID, task.Result)
			case 2:
				if task.Error != "" {
					return nil, fmt.Errorf("analysis failed for task %s: %s", taskID, task.Error)
				}
				return nil, fmt.Errorf("analysis failed for task %s", taskID)
			}
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}

// Analyze submits audioPath and waits for its analysis.
func (c *Client) Analyze(ctx context.Context, audioPath string, interval time.Duration) (*Analysis, error) {
	id, err := c.Submit(ctx, Request{AudioPath: audioPath, SeparateStems: true})
	if err != nil {
		return nil, err
	}
	c.log.Infof("Analysis task %s submitted for %s", id, filepath.Base(audioPath))
	a, err := c.PollUntilDone(ctx, id, interval)
	if err != nil {
		return nil, err
	}
	a.Path = audioPath
	return a, nil
}

func (c *Client) finish(ctx context.Context, taskID, resultJSON string) (*Analysis, error) {
	a, err := Parse(strings.NewReader(resultJSON))
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	for name, ref := range a.Stems {
		local, err := c.resolveFile(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("task %s stem %s: %w", taskID, name, err)
		}
		a.Stems[name] = local
	}
	return a, nil
}

// resolveFile maps a file reference from the service to a local path.
// References look like "/v1/audio?path=outputs/task_xxx/bass.wav"; the
// shared volume is tried before downloading.
func (c *Client) resolveFile(ctx context.Context, fileRef string) (string, error) {
	if u, err := url.Parse(fileRef); err == nil {
		if relPath := u.Query().Get("path"); relPath != "" {
			localPath := filepath.Join(c.outputDir, relPath)
			if _, err := os.Stat(localPath); err == nil {
				return localPath, nil
			}
		}
	}
	if _, err := os.Stat(fileRef); err == nil {
		return fileRef, nil
	}
	return c.download(ctx, fileRef)
}

// download fetches a file from the service and saves it locally.
func (c *Client) download(ctx context.Context, fileRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+fileRef, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", fileRef, resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp("", "segue-stem-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write stem: %w", err)
	}
	tmpFile.Close()
	return tmpFile.Name(), nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.http.Do(req)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
