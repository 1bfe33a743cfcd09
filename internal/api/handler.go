package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/groupclip/groupclip/internal/remote"
	"github.com/groupclip/groupclip/internal/share"
	"github.com/groupclip/groupclip/internal/storage"
)

const maxShareBodySize = 1 << 20 // 1MB

// RecordSharer runs the explicit-share pipeline. Implemented by
// pipeline.Pipeline.
type RecordSharer interface {
	ShareRecord(ctx context.Context, rec share.Record) error
}

// ConnectionTester runs the staged remote-store diagnostic.
type ConnectionTester interface {
	TestConnection(ctx context.Context) remote.TestResult
}

// Toggler controls the clipboard poller.
type Toggler interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// GroupSubscriber swaps the active realtime channel.
type GroupSubscriber interface {
	Subscribe(ctx context.Context, groupID string) error
}

// Deps holds the handler's collaborators.
type Deps struct {
	Store      *storage.Store
	Sharer     RecordSharer
	Conn       ConnectionTester
	Poller     Toggler
	Subscriber GroupSubscriber
	Hub        *Hub
	Token      string
}

// NewHandler builds the daemon's HTTP surface. Everything except /health
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/ping", handlePing)
		r.Post("/share", handleShare(deps))
		r.Get("/diagnostics/connection", handleDiagnostics(deps))
		r.Post("/clipboard/toggle", handleToggle(deps))

		r.Get("/settings", handleGetSettings(deps))
		r.Patch("/settings", handlePatchSettings(deps))

		r.Get("/activities", handleListActivities(deps))
		r.Get("/history", handleListHistory(deps))
		r.Get("/errors", handleListErrors(deps))

		r.Get("/webhooks", handleListWebhooks(deps))
		r.Post("/webhooks", handleAddWebhook(deps))
		r.Delete("/webhooks/{id}", handleDeleteWebhook(deps))

		if deps.Hub != nil {
			r.Get("/events", deps.Hub.ServeHTTP)
		}
	})

	return r
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"success": true, "message": "daemon is active"})
}

func handleShare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxShareBodySize)
		defer r.Body.Close()

		var rec share.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := deps.Sharer.ShareRecord(r.Context(), rec)
		switch {
		case errors.Is(err, share.ErrInvalidPayload):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
		case err != nil:
			// Connection-level failure: the UI should show "not ready",
			// unlike delivery failures which never reach here.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
		default:
			writeJSON(w, map[string]any{"success": true})
		}
	}
}

func handleDiagnostics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Conn.TestConnection(r.Context()))
	}
}

func handleToggle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		deps.Poller.SetEnabled(req.Enabled)
		if err := deps.Store.SetSetting(storage.KeyClipboardEnabled, strconv.FormatBool(req.Enabled)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "persisting toggle: %v", err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "enabled": req.Enabled})
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"username":         deps.Store.GetSettingDefault(storage.KeyUsername, ""),
			"groupId":          deps.Store.GetSettingDefault(storage.KeyGroupID, ""),
			"clipboardEnabled": deps.Poller.Enabled(),
		})
	}
}

func handlePatchSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username *string `json:"username"`
			GroupID  *string `json:"groupId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Username != nil {
			if *req.Username == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "username cannot be empty")
				return
			}
			if err := deps.Store.SetSetting(storage.KeyUsername, *req.Username); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "saving username: %v", err)
				return
			}
		}

		var warning string
		if req.GroupID != nil {
			if err := deps.Store.SetSetting(storage.KeyGroupID, *req.GroupID); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "saving group: %v", err)
				return
			}
			// Changing the group replaces the realtime channel. A failed
			// re-subscribe does not fail the settings write.
			if deps.Subscriber != nil {
				if err := deps.Subscriber.Subscribe(r.Context(), *req.GroupID); err != nil {
					warning = fmt.Sprintf("group saved but subscription failed: %v", err)
				}
			}
		}

		resp := map[string]any{"success": true}
		if warning != "" {
			resp["warning"] = warning
		}
		writeJSON(w, resp)
	}
}

func handleListActivities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Store.RecentActivities(queryLimit(r, storage.MaxActivities))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing activities: %v", err)
			return
		}
		if items == nil {
			items = []storage.Activity{}
		}
		writeJSON(w, items)
	}
}

func handleListHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Store.History(queryLimit(r, storage.MaxHistory))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing history: %v", err)
			return
		}
		if items == nil {
			items = []storage.HistoryEntry{}
		}
		writeJSON(w, items)
	}
}

func handleListErrors(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Store.ErrorLogs(queryLimit(r, storage.MaxErrorLogs))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing error logs: %v", err)
			return
		}
		if items == nil {
			items = []storage.ErrorLog{}
		}
		writeJSON(w, items)
	}
}

func handleListWebhooks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items, err := deps.Store.ListWebhooks()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing webhooks: %v", err)
			return
		}
		if items == nil {
			items = []storage.Webhook{}
		}
		writeJSON(w, items)
	}
}

func handleAddWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" || req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name and url are required")
			return
		}
		if !strings.HasPrefix(req.URL, "https://discord.com/api/webhooks/") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url must be a Discord webhook URL")
			return
		}

		hook, err := deps.Store.AddWebhook(storage.Webhook{Name: req.Name, URL: req.URL})
		if err != nil {
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, hook)
	}
}

func handleDeleteWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteWebhook(id)
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "webhook %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting webhook: %v", err)
			return
		}
		writeJSON(w, map[string]any{"success": true})
	}
}

func queryLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
