package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

const (
	maxTokens       = 4000
	maxResponseSize = 4 << 20
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// postJSON sends in as JSON and returns the raw reply body with its status.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in interface{}) (int, []byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "failed to read response")
	}
	return resp.StatusCode, body, nil
}

// errorReply covers both {"error":{"message":...}} and {"message":...}.
type errorReply struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func replyError(status int, body []byte, fallback string) error {
	var reply errorReply
	_ = json.Unmarshal(body, &reply)
	msg := reply.Error.Message
	if msg == "" {
		msg = reply.Message
	}
	if msg == "" {
		msg = fallback
	}
	return &apiError{StatusCode: status, Message: msg}
}

func statusOK(status int) bool {
	return status >= 200 && status < 300
}
