package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func (d *Dispatcher) callWebhook(ctx context.Context, conf map[string]any, triggerData map[string]any) (map[string]any, error) {
	url := stringValue(conf, "url")
	if url == "" {
		return nil, fmt.Errorf("webhook requires a 'url'")
	}
	method := strings.ToUpper(stringValue(conf, "method"))
	if method == "" {
		method = http.MethodPost
	}

	body := conf["body"]
	if body == nil {
		body = triggerData
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("webhook body not serializable: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := conf["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return map[string]any{
		"statusCode": resp.StatusCode,
		"response":   string(respBody),
	}, nil
}
