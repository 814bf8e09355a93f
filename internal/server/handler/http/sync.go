package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/cloudsync"
	"github.com/atinyakov/BudgetKeeper/internal/middleware"
	"github.com/atinyakov/BudgetKeeper/internal/result"
)

// CloudSync defines the façade operations the SyncHandler exposes.
type CloudSync interface {
	Sync(ctx context.Context) result.Result
	Status(ctx context.Context) (cloudsync.Status, error)
	EnableCloudSync(ctx context.Context, mode cloudsync.SyncMode, input map[string]string) result.Result
	DisableCloudSync(ctx context.Context) result.Result
	AuthorizationURL(appKey string) string
}

// SyncHandler handles the control API requests.
type SyncHandler struct {
	CloudSync CloudSync
	Logger    *zap.Logger
}

// EnableRequest is the body of POST /api/cloud/enable.
type EnableRequest struct {
	Mode  string            `json:"mode"`
	Input map[string]string `json:"input"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, r result.Result, failure int) {
	status := http.StatusOK
	if !r.Success {
		status = failure
	}
	writeJSON(w, status, r)
}

func (h *SyncHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Sync handles POST /api/sync. It runs one sync and returns its Result;
// a failed sync answers 502 since the failure is usually the remote's.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	client := middleware.GetClientFromContext(r.Context())
	h.logger().Info("sync requested", zap.String("client", client))

	writeResult(w, h.CloudSync.Sync(r.Context()), http.StatusBadGateway)
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.CloudSync.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Enable handles POST /api/cloud/enable.
func (h *SyncHandler) Enable(w http.ResponseWriter, r *http.Request) {
	var req EnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	mode, err := cloudsync.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResult(w, h.CloudSync.EnableCloudSync(r.Context(), mode, req.Input), http.StatusUnprocessableEntity)
}

// Disable handles POST /api/cloud/disable.
func (h *SyncHandler) Disable(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.CloudSync.DisableCloudSync(r.Context()), http.StatusInternalServerError)
}

// AuthorizationURL handles GET /api/cloud/dropbox/authorize?app_key=...
func (h *SyncHandler) AuthorizationURL(w http.ResponseWriter, r *http.Request) {
	appKey := r.URL.Query().Get("app_key")
	if appKey == "" {
		http.Error(w, "app_key is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.CloudSync.AuthorizationURL(appKey)})
}
