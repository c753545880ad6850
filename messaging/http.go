package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/utils"
)

const (
	codeNoAgent       = "no_agent"
	codeUnknownAction = "unknown_action"
	codeBadRequest    = "bad_request"
	codeTimeout       = "timeout"
	codeInternal      = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type injectBody struct {
	URL string `json:"url"`
}

type httpServer struct {
	agents Agents
}

// NewHTTPHandler exposes agents over HTTP:
//
//	POST   /tabs/{tabID}/messages  Request -> Response
//	POST   /tabs/{tabID}/inject    {"url": ...}
//	DELETE /tabs/{tabID}
//	GET    /health
func NewHTTPHandler(agents Agents) http.Handler {
	s := &httpServer{agents: agents}
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Post("/tabs/{tabID}/messages", s.message)
	r.Post("/tabs/{tabID}/inject", s.inject)
	r.Delete("/tabs/{tabID}", s.release)
	return r
}

func (s *httpServer) message(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabID")
	var req Request
	if err := utils.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid message body")
		return
	}

	resp, err := s.agents.Handle(r.Context(), tabID, req)
	if err != nil {
		status, code := classify(err)
		logrus.WithFields(logrus.Fields{
			"tab_id": tabID,
			"action": req.Action,
		}).WithError(err).Debug("Agent message failed")
		writeError(w, status, code, err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

func (s *httpServer) inject(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabID")
	var body injectBody
	if err := utils.DecodeJSON(r, &body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "url is required")
		return
	}
	if err := s.agents.Inject(r.Context(), tabID, body.URL); err != nil {
		logrus.WithFields(logrus.Fields{
			"tab_id": tabID,
			"url":    body.URL,
		}).WithError(err).Warn("Agent injection failed")
		writeError(w, http.StatusBadGateway, codeInternal, err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, Response{Success: true})
}

func (s *httpServer) release(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabID")
	if err := s.agents.Release(r.Context(), tabID); err != nil {
		logrus.WithField("tab_id", tabID).WithError(err).Warn("Agent release failed")
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, Response{Success: true})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNoAgent):
		return http.StatusNotFound, codeNoAgent
	case errors.Is(err, ErrUnknownAction):
		return http.StatusBadRequest, codeUnknownAction
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// codeError rebuilds a known agent-side error from its wire code. It
// returns nil for codes without a sentinel.
func codeError(code, message string) error {
	switch code {
	case codeNoAgent:
		return ErrNoAgent
	case codeUnknownAction:
		return errors.Wrap(ErrUnknownAction, message)
	case codeTimeout:
		return errors.Wrap(context.DeadlineExceeded, message)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	utils.RespondWithJSON(w, status, errorBody{Error: message, Code: code})
}

// HTTPClient talks to agents served by NewHTTPHandler.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *HTTPClient) Send(ctx context.Context, tabID string, req Request) (Response, error) {
	var resp Response
	err := c.do(ctx, http.MethodPost, "/tabs/"+url.PathEscape(tabID)+"/messages", req, &resp)
	return resp, err
}

func (c *HTTPClient) Inject(ctx context.Context, tabID, rawURL string) error {
	return c.do(ctx, http.MethodPost, "/tabs/"+url.PathEscape(tabID)+"/inject", injectBody{URL: rawURL}, nil)
}

func (c *HTTPClient) Release(ctx context.Context, tabID string) error {
	return c.do(ctx, http.MethodDelete, "/tabs/"+url.PathEscape(tabID), nil, nil)
}

func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode message")
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "agent request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read agent response")
	}
	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		if err := codeError(eb.Code, eb.Error); err != nil {
			return err
		}
		return errors.Errorf("agent returned status %d: %s", resp.StatusCode, eb.Error)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, out), "failed to decode agent response")
}
