package api

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/organica-ai/nishub/pkg/types"
)

// errorEnvelope is the machine-readable error body: a stable code for
// programs plus a message for humans.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *fiber.Ctx, status int, code types.ErrorCode, message string) error {
	return c.Status(status).JSON(errorEnvelope{
		Error: errorBody{Code: string(code), Message: message},
	})
}

// writeHubError maps a HubError to its HTTP status
func writeHubError(c *fiber.Ctx, err error) error {
	var hubErr *types.HubError
	if !errors.As(err, &hubErr) {
		return writeError(c, fiber.StatusInternalServerError, types.ErrCodeSystemError, err.Error())
	}

	status := fiber.StatusInternalServerError
	switch hubErr.Code {
	case types.ErrCodeValidation:
		status = fiber.StatusBadRequest
	case types.ErrCodeNodeNotFound:
		status = fiber.StatusNotFound
	case types.ErrCodeStorageTimeout, types.ErrCodeTimeout:
		status = fiber.StatusGatewayTimeout
	}
	return writeError(c, status, hubErr.Code, hubErr.Message)
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req types.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation, "malformed request body")
	}

	record, err := s.registry.Register(c.Context(), req)
	if err != nil {
		return writeHubError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (s *Server) handleHeartbeat(c *fiber.Ctx) error {
	var req types.HeartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation, "malformed request body")
	}
	if req.NodeID == "" {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation, "node_id must not be empty")
	}

	record, err := s.registry.Heartbeat(c.Context(), req)
	if err != nil {
		return writeHubError(c, err)
	}
	return c.JSON(record)
}

func (s *Server) handleListNodes(c *fiber.Ctx) error {
	filter := types.NodeFilter{
		Status:     types.NodeStatus(c.Query("status")),
		Type:       c.Query("type"),
		Capability: c.Query("capability"),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation, "unknown status filter")
	}

	records := s.registry.List(filter)
	return c.JSON(fiber.Map{
		"nodes": records,
		"count": len(records),
	})
}

func (s *Server) handleGetNode(c *fiber.Ctx) error {
	nodeID := types.NodeID(c.Params("id"))

	record, err := s.registry.Get(nodeID)
	if err != nil {
		return writeHubError(c, err)
	}

	response := fiber.Map{"node": record}
	if validations := s.registry.Validations(nodeID); validations != nil {
		response["validations"] = validations
	}
	return c.JSON(response)
}

func (s *Server) handleDeregister(c *fiber.Ctx) error {
	nodeID := types.NodeID(c.Params("id"))

	// Always acknowledged: a node racing its own shutdown is harmless
	if err := s.registry.Deregister(c.Context(), nodeID); err != nil {
		return writeHubError(c, err)
	}
	return c.JSON(fiber.Map{"status": "deregistered", "node_id": nodeID})
}

func (s *Server) handleStatsSummary(c *fiber.Ctx) error {
	return c.JSON(s.registry.Summarize())
}

// BroadcastRequest is the body of POST /api/v1/events/broadcast
type BroadcastRequest struct {
	Kind   types.EventKind        `json:"kind"`
	NodeID types.NodeID           `json:"node_id,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

func (s *Server) handleBroadcast(c *fiber.Ctx) error {
	var req BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation, "malformed request body")
	}
	if !req.Kind.IsValid() {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation, "unknown event kind")
	}
	if req.Kind.IsMembership() {
		return writeError(c, fiber.StatusBadRequest, types.ErrCodeValidation,
			"membership events are registry-owned and cannot be broadcast directly")
	}

	event := &types.Event{
		Kind:      req.Kind,
		NodeID:    req.NodeID,
		Timestamp: time.Now().UTC(),
		Data:      req.Data,
	}
	seq := s.hub.Publish(event)
	if s.metrics != nil {
		s.metrics.RecordEventPublished(string(req.Kind))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.AppendEvent(ctx, event); err != nil {
			log.Printf("[api] event log append failed: %v", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"seq": seq})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	storageStatus := "connected"
	if err := s.store.Ping(ctx); err != nil {
		status = "degraded"
		storageStatus = "unreachable"
	}

	summary := s.registry.Summarize()
	hubStats := s.hub.Stats()

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"uptime":  time.Since(s.startTime).Seconds(),
		"storage": fiber.Map{"status": storageStatus},
		"nodes": fiber.Map{
			"total":     summary.Total,
			"healthy":   summary.Healthy,
			"by_status": summary.ByStatus,
		},
		"subscribers": hubStats.Subscribers,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	hubStats := s.hub.Stats()

	return c.JSON(fiber.Map{
		"uptime":         time.Since(s.startTime).Seconds(),
		"requests_total": atomic.LoadInt64(&s.requestCount),
		"errors_total":   atomic.LoadInt64(&s.errorCount),
		"json_library":   s.json.Library,
		"hub": fiber.Map{
			"last_seq":        hubStats.LastSeq,
			"published":       hubStats.Published,
			"subscribers":     hubStats.Subscribers,
			"dropped_events":  hubStats.DroppedEvents,
			"lag_disconnects": hubStats.LagDisconnects,
		},
	})
}
