package accounts

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/splitpot/splitpot/internal/platform/httpx"
	"github.com/splitpot/splitpot/internal/shared"
)

// Handler manages account endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups/{groupID}/accounts", h.listAccounts)
	r.Post("/groups/{groupID}/accounts", h.createAccount)
	r.Get("/accounts/{accountID}", h.getAccount)
	r.Post("/accounts/{accountID}", h.updateAccount)
	r.Delete("/accounts/{accountID}", h.deleteAccount)
}

type accountPayload struct {
	Type           string             `json:"type" validate:"omitempty,oneof=personal clearing"`
	Name           string             `json:"name" validate:"required,max=255"`
	Description    string             `json:"description" validate:"max=4096"`
	ClearingShares map[string]float64 `json:"clearing_shares"`
	DateInfo       *time.Time         `json:"date_info"`
}

type detailsResponse struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Deleted        bool               `json:"deleted"`
	ClearingShares map[string]float64 `json:"clearing_shares,omitempty"`
	DateInfo       *time.Time         `json:"date_info,omitempty"`
}

type accountResponse struct {
	ID        int64            `json:"id"`
	GroupID   int64            `json:"group_id"`
	Type      string           `json:"type"`
	Version   int64            `json:"version"`
	Committed *detailsResponse `json:"committed,omitempty"`
	Pending   *detailsResponse `json:"pending,omitempty"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid group id")
		return
	}
	var payload accountPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
		return
	}
	clearingShares, err := parseShareKeys(payload.ClearingShares)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
		return
	}
	accountID, err := h.service.Create(r.Context(), userID, CreateAccountRequest{
		GroupID:        groupID,
		Type:           AccountType(payload.Type),
		Name:           payload.Name,
		Description:    payload.Description,
		ClearingShares: clearingShares,
		DateInfo:       payload.DateInfo,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"account_id": accountID})
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid account id")
		return
	}
	var payload accountPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
		return
	}
	clearingShares, err := parseShareKeys(payload.ClearingShares)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), userID, accountID, UpdateAccountRequest{
		Name:           payload.Name,
		Description:    payload.Description,
		ClearingShares: clearingShares,
		DateInfo:       payload.DateInfo,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid account id")
		return
	}
	if err := h.service.Delete(r.Context(), userID, accountID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), userID, accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid group id")
		return
	}
	accounts, err := h.service.List(r.Context(), userID, groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, *toAccountResponse(&accounts[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func toAccountResponse(a *Account) *accountResponse {
	return &accountResponse{
		ID:        a.ID,
		GroupID:   a.GroupID,
		Type:      string(a.Type),
		Version:   a.Version,
		Committed: toDetailsResponse(a.Committed),
		Pending:   toDetailsResponse(a.Pending),
	}
}

func toDetailsResponse(d *Details) *detailsResponse {
	if d == nil {
		return nil
	}
	resp := &detailsResponse{
		Name:        d.Name,
		Description: d.Description,
		Deleted:     d.Deleted,
		DateInfo:    d.DateInfo,
	}
	if len(d.ClearingShares) > 0 {
		resp.ClearingShares = make(map[string]float64, len(d.ClearingShares))
		for id, w := range d.ClearingShares {
			resp.ClearingShares[strconv.FormatInt(id, 10)] = w
		}
	}
	return resp
}

func parseShareKeys(raw map[string]float64) (map[int64]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	shares := make(map[int64]float64, len(raw))
	for key, weight := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, shared.InvalidCommandf("invalid share account id %q", key)
		}
		shares[id] = weight
	}
	return shares, nil
}
