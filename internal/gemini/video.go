package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type VideoRequest struct {
	Prompt      string
	AspectRatio string
	Resolution  string
}

// Operation is the state of a long-running video job.
type Operation struct {
	Name     string
	Done     bool
	VideoURI string
	Error    string
}

// StartVideo submits a video job and returns its operation handle.
func (c *Client) StartVideo(ctx context.Context, req VideoRequest) (*Operation, error) {
	payload := map[string]any{
		"instances": []map[string]any{{"prompt": req.Prompt}},
		"parameters": map[string]any{
			"aspectRatio":    req.AspectRatio,
			"resolution":     req.Resolution,
			"numberOfVideos": 1,
		},
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", c.baseURL, url.PathEscape(c.videoModel))

	c.log.Info("submitting video job", "model", c.videoModel, "aspect_ratio", req.AspectRatio, "resolution", req.Resolution)
	raw, err := c.doJSON(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("start video: %w", err)
	}
	op, err := decodeOperation(raw)
	if err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, fmt.Errorf("empty operation name in response")
	}
	c.log.Info("video job submitted", "operation", op.Name)
	return op, nil
}

// VideoStatus fetches the current state of a video operation.
func (c *Client) VideoStatus(ctx context.Context, name string) (*Operation, error) {
	endpoint := c.baseURL + "/v1beta/" + strings.TrimLeft(name, "/")
	raw, err := c.doJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("video status: %w", err)
	}
	return decodeOperation(raw)
}

// Download fetches a finished artifact. The API key goes on the query string, as the
// file endpoint expects.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse artifact uri: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download artifact: status=%d body=%s", resp.StatusCode, truncateBody(data))
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return data, contentType, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("gemini request failed", "status", resp.StatusCode, "url", endpoint, "body", truncateBody(raw))
		return nil, fmt.Errorf("gemini error: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}
	return raw, nil
}

func decodeOperation(raw []byte) (*Operation, error) {
	var resp struct {
		Name     string `json:"name"`
		Done     bool   `json:"done"`
		Response struct {
			GenerateVideoResponse struct {
				GeneratedSamples []struct {
					Video struct {
						URI string `json:"uri"`
					} `json:"video"`
				} `json:"generatedSamples"`
			} `json:"generateVideoResponse"`
		} `json:"response"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode operation: %w (body=%s)", err, truncateBody(raw))
	}

	op := &Operation{Name: resp.Name, Done: resp.Done}
	if resp.Error != nil {
		op.Error = fmt.Sprintf("code=%d %s", resp.Error.Code, resp.Error.Message)
	}
	if samples := resp.Response.GenerateVideoResponse.GeneratedSamples; len(samples) > 0 {
		op.VideoURI = samples[0].Video.URI
	}
	return op, nil
}
