package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/auth"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

// HTTP talks to a remote ledger API, authenticating as principal with a
// short-lived HS256 token.
type HTTP struct {
	baseURL   string
	secret    string
	audience  string
	principal access.Principal
	client    *http.Client
}

func NewHTTP(baseURL, secret, audience string, principal access.Principal) *HTTP {
	return &HTTP{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secret:    secret,
		audience:  audience,
		principal: principal,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type commitRequest struct {
	Entries []ledger.Entry `json:"entries"`
}

type commitResponse struct {
	BatchID ledger.BatchID `json:"batch_id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTP) Commit(ctx context.Context, owner access.Principal, entries []ledger.Entry) (ledger.BatchID, error) {
	body, err := json.Marshal(commitRequest{Entries: entries})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/users/%s/batches", h.baseURL, url.PathEscape(string(owner)))
	resp, err := h.do(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return 0, decodeError(resp)
	}

	var result commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return result.BatchID, nil
}

func (h *HTTP) BatchVisible(ctx context.Context, id ledger.BatchID) (bool, error) {
	resp, err := h.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/batches/%d", h.baseURL, id), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, decodeError(resp)
	}
}

func (h *HTTP) do(ctx context.Context, method, u string, body io.Reader) (*http.Response, error) {
	token, err := auth.SignToken(h.secret, h.principal, h.audience, time.Minute)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// decodeError maps an API error body back onto the ledger sentinel errors.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil {
		if sentinel := ledger.ErrorFromCode(e.Code); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, e.Message)
		}
	}
	return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
}
