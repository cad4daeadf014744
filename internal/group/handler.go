package group

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/splitpot/splitpot/internal/platform/httpx"
	"github.com/splitpot/splitpot/internal/shared"
)

// Handler manages group read endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups/{groupID}/members", h.listMembers)
	r.Get("/groups/{groupID}/log", h.listLog)
}

type memberResponse struct {
	UserID   int64  `json:"user_id"`
	CanWrite bool   `json:"can_write"`
	IsOwner  bool   `json:"is_owner"`
	JoinedAt string `json:"joined_at"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid group id")
		return
	}
	members, err := h.service.ListMembers(r.Context(), groupID, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			UserID:   m.UserID,
			CanWrite: m.CanWrite,
			IsOwner:  m.IsOwner,
			JoinedAt: m.JoinedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type logEntryResponse struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	AffectedUserID *int64 `json:"affected_user_id,omitempty"`
	LoggedAt       string `json:"logged_at"`
}

func (h *Handler) listLog(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid group id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	entries, err := h.service.ListLog(r.Context(), groupID, userID, page, pageSize)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]logEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntryResponse{
			ID:             e.ID,
			UserID:         e.UserID,
			Type:           e.Type,
			Message:        e.Message,
			AffectedUserID: e.AffectedUserID,
			LoggedAt:       e.LoggedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
