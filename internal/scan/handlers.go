package scan

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// jsonError writes {"error": message} with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// tenantFromRequest reads tenant_id from a JSON body, falling back to the query string
func tenantFromRequest(r *http.Request) (string, error) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
	}
	if req.TenantID == "" {
		req.TenantID = r.URL.Query().Get("tenant_id")
	}
	return strings.TrimSpace(req.TenantID), nil
}

// authorizeTenant resolves the tenant and checks the caller belongs to it.
// It writes the error response and returns false when the request must stop.
func (s *Server) authorizeTenant(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	if tenantID == "" {
		jsonError(w, "tenant_id is required", http.StatusBadRequest)
		return false
	}

	userID := userIDFromContext(r.Context())
	member, err := s.service.IsMember(tenantID, userID)
	if err != nil {
		slog.Error("Error checking tenant membership",
			"tenant_id", tenantID,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	if !member {
		jsonError(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleScan runs an anomaly scan for the requested tenant
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !s.authorizeTenant(w, r, tenantID) {
		return
	}

	result, err := s.service.Scan(r.Context(), tenantID, userIDFromContext(r.Context()))
	if err != nil {
		slog.Error("Error running anomaly scan",
			"tenant_id", tenantID,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// handleAuditLog returns the tenant's scan history
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if !s.authorizeTenant(w, r, tenantID) {
		return
	}

	entries, err := s.service.AuditTrail(tenantID)
	if err != nil {
		slog.Error("Error listing audit log", "tenant_id", tenantID, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, entries)
}
