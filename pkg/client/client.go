// Package client provides a Go client for the NIS Hub coordination
// server. It covers registration, heartbeating, roster queries and the
// real-time event stream over WebSocket.
package client

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

	"github.com/organica-ai/nishub/pkg/types"
)

// Client talks to one hub instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a hub client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError mirrors the server's error envelope
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiError
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
			return types.NewHubError(types.ErrorCode(envelope.Error.Code), envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Register registers (or re-registers) a node and returns its record.
func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*types.NodeRecord, error) {
	var record types.NodeRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes/register", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Heartbeat sends one heartbeat for the node.
func (c *Client) Heartbeat(ctx context.Context, req types.HeartbeatRequest) (*types.NodeRecord, error) {
	var record types.NodeRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes/heartbeat", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// listResponse is the body of GET /api/v1/nodes
type listResponse struct {
	Nodes []*types.NodeRecord `json:"nodes"`
	Count int                 `json:"count"`
}

// ListNodes returns the roster, optionally filtered.
func (c *Client) ListNodes(ctx context.Context, filter types.NodeFilter) ([]*types.NodeRecord, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Type != "" {
		query.Set("type", filter.Type)
	}
	if filter.Capability != "" {
		query.Set("capability", filter.Capability)
	}

	path := "/api/v1/nodes"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// nodeResponse is the body of GET /api/v1/nodes/:id
type nodeResponse struct {
	Node        *types.NodeRecord      `json:"node"`
	Validations map[string]interface{} `json:"validations,omitempty"`
}

// GetNode returns one node record.
func (c *Client) GetNode(ctx context.Context, nodeID types.NodeID) (*types.NodeRecord, error) {
	var resp nodeResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/nodes/"+url.PathEscape(string(nodeID)), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Node, nil
}

// Deregister removes the node from the roster. Unknown ids are
// acknowledged, so shutdown paths can call this unconditionally.
func (c *Client) Deregister(ctx context.Context, nodeID types.NodeID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/nodes/"+url.PathEscape(string(nodeID)), nil, nil)
}

// BroadcastEvent publishes a coordination event through the hub and
// returns its assigned sequence number.
func (c *Client) BroadcastEvent(ctx context.Context, kind types.EventKind, nodeID types.NodeID, data map[string]interface{}) (uint64, error) {
	body := map[string]interface{}{
		"kind":    kind,
		"node_id": nodeID,
		"data":    data,
	}
	var resp struct {
		Seq uint64 `json:"seq"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events/broadcast", body, &resp); err != nil {
		return 0, err
	}
	return resp.Seq, nil
}

// RunHeartbeat sends heartbeats for the node at the given interval until
// the context ends. It returns the first delivery error, so callers can
// re-register and restart the loop.
func (c *Client) RunHeartbeat(ctx context.Context, nodeID types.NodeID, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Heartbeat(ctx, types.HeartbeatRequest{NodeID: nodeID}); err != nil {
				return err
			}
		}
	}
}
