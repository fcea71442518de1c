package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nugget/hearth/internal/hue"
	"github.com/nugget/hearth/internal/lighting"
)

// HueBridge is the bridge setup surface behind the /hue routes.
type HueBridge interface {
	Discover(ctx context.Context) ([]hue.Bridge, error)
	SetBridgeIP(ip string)
	Link(ctx context.Context) (string, error)
	Lights(ctx context.Context) ([]lighting.Light, error)
	Credentials() (bridgeIP, username string)
}

func (s *Server) requireHue(w http.ResponseWriter) bool {
	if s.hue == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Hue lighting backend not configured")
		return false
	}
	return true
}

// GET /hue/bridge/discover
func (s *Server) handleHueDiscover(w http.ResponseWriter, r *http.Request) {
	if !s.requireHue(w) {
		return
	}
	bridges, err := s.hue.Discover(r.Context())
	if err != nil {
		s.logger.Warn("hue discovery failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to discover Hue bridge")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":  true,
		"bridgeIp": bridges[0].InternalIPAddress,
		"bridges":  bridges,
	}, s.logger)
}

type hueLinkRequest struct {
	IP string `json:"ip"`
}

// POST /hue/bridge/link {"ip": "192.168.1.20"}
//
// The bridge's link button must be pressed first. The body is optional;
// without an ip the configured or discovered bridge is used.
func (s *Server) handleHueLink(w http.ResponseWriter, r *http.Request) {
	if !s.requireHue(w) {
		return
	}
	var req hueLinkRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.IP != "" {
		s.hue.SetBridgeIP(req.IP)
	}

	username, err := s.hue.Link(r.Context())
	if err != nil {
		var apiErr *hue.APIError
		if errors.As(err, &apiErr) && apiErr.LinkButtonNotPressed() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{
				"success": false,
				"error":   "Link button not pressed",
				"details": "Press the link button on the Hue bridge, then retry within 30 seconds.",
			}, s.logger)
			return
		}
		s.logger.Warn("hue link failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to link Hue bridge: %v", err))
		return
	}

	bridgeIP, _ := s.hue.Credentials()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":  true,
		"username": username,
		"message":  "Bridge linked. Save these values to keep the link across restarts.",
		"env": map[string]string{
			"HUE_USERNAME":  username,
			"HUE_BRIDGE_IP": bridgeIP,
		},
	}, s.logger)
}

// GET /hue/test
func (s *Server) handleHueTest(w http.ResponseWriter, r *http.Request) {
	if !s.requireHue(w) {
		return
	}
	lights, err := s.hue.Lights(r.Context())
	if err != nil {
		s.logger.Warn("hue test failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, fmt.Sprintf("Hue bridge unreachable: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Connected to Hue bridge, found %d lights", len(lights)),
		"lights":  lights,
	}, s.logger)
}
