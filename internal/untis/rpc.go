package untis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"berichtsheft/internal/httpx"
)

const defaultDirectoryURL = "https://mobile.webuntis.com/ms/schoolquery2"

// Client talks to the school-information system. The zero value is not
// usable; construct with NewClient.
type Client struct {
	HTTPClient *http.Client

	// DirectoryURL is the school-search endpoint.
	DirectoryURL string

	// Scheme is prepended to per-candidate servers when building the
	// authentication and data URLs. Tests point it at plain http.
	Scheme string
}

func NewClient() *Client {
	return &Client{
		HTTPClient:   httpx.Client(),
		DirectoryURL: defaultDirectoryURL,
		Scheme:       "https",
	}
}

func (c *Client) serverURL(server, tenantID string) string {
	u := fmt.Sprintf("%s://%s/WebUntis/jsonrpc.do", c.Scheme, server)
	if tenantID != "" {
		u += "?school=" + tenantID
	}
	return u
}

type rpcRequest struct {
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	JSONRPC string `json:"jsonrpc"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON-RPC exchange. Network failures and unparseable
// bodies come back as *TransportError, remote rejections as *RPCError.
func (c *Client) call(ctx context.Context, url, method string, params any, sessionCookie string) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		ID:      method,
		Method:  method,
		Params:  params,
		JSONRPC: "2.0",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Berichtsheft/1.0")
	if sessionCookie != "" {
		req.Header.Set("Cookie", "JSESSIONID="+sessionCookie)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, Err: err}
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &TransportError{Op: method + " read", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: method, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &TransportError{Op: method + " parse", Err: fmt.Errorf("%w (body: %s)", err, truncate(body, 200))}
	}
	if envelope.Error != nil {
		return nil, &RPCError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	return envelope.Result, nil
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
