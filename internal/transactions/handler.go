package transactions

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/splitpot/splitpot/internal/ledger"
	"github.com/splitpot/splitpot/internal/platform/httpx"
	"github.com/splitpot/splitpot/internal/shared"
)

// Handler manages transaction endpoints.
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

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups/{groupID}/transactions", h.listTransactions)
	r.Post("/groups/{groupID}/transactions", h.createTransaction)

	r.Route("/transactions/{transactionID}", func(r chi.Router) {
		r.Get("/", h.getTransaction)
		r.Post("/", h.updateTransaction)
		r.Delete("/", h.deleteTransaction)
		r.Post("/commit", h.commitTransaction)
		r.Post("/discard", h.discardTransaction)

		r.Post("/creditor-shares/{accountID}", h.shareHandler(ShareCreditor, false))
		r.Post("/creditor-shares/{accountID}/switch", h.shareHandler(ShareCreditor, true))
		r.Delete("/creditor-shares/{accountID}", h.deleteShareHandler(ShareCreditor))
		r.Post("/debitor-shares/{accountID}", h.shareHandler(ShareDebitor, false))
		r.Post("/debitor-shares/{accountID}/switch", h.shareHandler(ShareDebitor, true))
		r.Delete("/debitor-shares/{accountID}", h.deleteShareHandler(ShareDebitor))

		r.Post("/items", h.createItem)
	})

	r.Route("/items/{itemID}", func(r chi.Router) {
		r.Post("/", h.updateItem)
		r.Delete("/", h.deleteItem)
		r.Post("/shares/{accountID}", h.setItemShare)
		r.Delete("/shares/{accountID}", h.deleteItemShare)
	})
}

type transactionPayload struct {
	Type                   string    `json:"type" validate:"omitempty,oneof=purchase transfer"`
	Value                  float64   `json:"value" validate:"required,gt=0"`
	CurrencyIdentifier     string    `json:"currency_identifier" validate:"required,len=3"`
	CurrencyConversionRate float64   `json:"currency_conversion_rate" validate:"required,gt=0"`
	BilledAt               time.Time `json:"billed_at" validate:"required"`
	Description            string    `json:"description" validate:"max=4096"`
	Tags                   []string  `json:"tags" validate:"dive,max=255"`
	SplitMode              string    `json:"split_mode" validate:"omitempty,oneof=shares percent absolute"`
}

type sharePayload struct {
	Shares float64 `json:"shares" validate:"gte=0"`
}

type itemPayload struct {
	Name            string  `json:"name" validate:"required,max=255"`
	Price           float64 `json:"price" validate:"gte=0"`
	CommunistShares float64 `json:"communist_shares" validate:"gte=0"`
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	groupID, ok := h.pathID(w, r, "groupID")
	if !ok {
		return
	}
	payload, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}
	transactionID, err := h.service.Create(r.Context(), userID, CreateTransactionRequest{
		GroupID:                groupID,
		Type:                   TransactionType(payload.Type),
		Value:                  payload.Value,
		CurrencyIdentifier:     payload.CurrencyIdentifier,
		CurrencyConversionRate: payload.CurrencyConversionRate,
		BilledAt:               payload.BilledAt,
		Description:            payload.Description,
		Tags:                   payload.Tags,
		SplitMode:              ledger.SplitMode(payload.SplitMode),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"transaction_id": transactionID})
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	transactionID, ok := h.pathID(w, r, "transactionID")
	if !ok {
		return
	}
	payload, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), userID, transactionID, UpdateTransactionRequest{
		Value:                  payload.Value,
		CurrencyIdentifier:     payload.CurrencyIdentifier,
		CurrencyConversionRate: payload.CurrencyConversionRate,
		BilledAt:               payload.BilledAt,
		Description:            payload.Description,
		Tags:                   payload.Tags,
		SplitMode:              ledger.SplitMode(payload.SplitMode),
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) commitTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	transactionID, ok := h.pathID(w, r, "transactionID")
	if !ok {
		return
	}
	if err := h.service.Commit(r.Context(), userID, transactionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) discardTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	transactionID, ok := h.pathID(w, r, "transactionID")
	if !ok {
		return
	}
	if err := h.service.DiscardChanges(r.Context(), userID, transactionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	transactionID, ok := h.pathID(w, r, "transactionID")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, transactionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) shareHandler(kind ShareKind, isSwitch bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := shared.UserFromContext(r.Context())
		transactionID, ok := h.pathID(w, r, "transactionID")
		if !ok {
			return
		}
		accountID, ok := h.pathID(w, r, "accountID")
		if !ok {
			return
		}
		var payload sharePayload
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "malformed request body")
			return
		}
		var err error
		switch {
		case isSwitch && kind == ShareCreditor:
			err = h.service.SwitchCreditorShare(r.Context(), userID, transactionID, accountID, payload.Shares)
		case isSwitch:
			err = h.service.SwitchDebitorShare(r.Context(), userID, transactionID, accountID, payload.Shares)
		case kind == ShareCreditor:
			err = h.service.AddOrChangeCreditorShare(r.Context(), userID, transactionID, accountID, payload.Shares)
		default:
			err = h.service.AddOrChangeDebitorShare(r.Context(), userID, transactionID, accountID, payload.Shares)
		}
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) deleteShareHandler(kind ShareKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := shared.UserFromContext(r.Context())
		transactionID, ok := h.pathID(w, r, "transactionID")
		if !ok {
			return
		}
		accountID, ok := h.pathID(w, r, "accountID")
		if !ok {
			return
		}
		var err error
		if kind == ShareCreditor {
			err = h.service.DeleteCreditorShare(r.Context(), userID, transactionID, accountID)
		} else {
			err = h.service.DeleteDebitorShare(r.Context(), userID, transactionID, accountID)
		}
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	transactionID, ok := h.pathID(w, r, "transactionID")
	if !ok {
		return
	}
	payload, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	itemID, err := h.service.CreatePurchaseItem(r.Context(), userID, transactionID, payload.Name, payload.Price, payload.CommunistShares)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"item_id": itemID})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	payload, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdatePurchaseItem(r.Context(), userID, itemID, payload.Name, payload.Price, payload.CommunistShares); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.DeletePurchaseItem(r.Context(), userID, itemID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setItemShare(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var payload sharePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "malformed request body")
		return
	}
	if err := h.service.AddOrChangeItemShare(r.Context(), userID, itemID, accountID, payload.Shares); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteItemShare(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	if err := h.service.DeleteItemShare(r.Context(), userID, itemID, accountID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	transactionID, ok := h.pathID(w, r, "transactionID")
	if !ok {
		return
	}
	txn, err := h.service.Get(r.Context(), userID, transactionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.UserFromContext(r.Context())
	groupID, ok := h.pathID(w, r, "groupID")
	if !ok {
		return
	}
	txns, err := h.service.List(r.Context(), userID, groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, *toTransactionResponse(&txns[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeTransaction(w http.ResponseWriter, r *http.Request) (*transactionPayload, bool) {
	var payload transactionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "malformed request body")
		return nil, false
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
		return nil, false
	}
	return &payload, true
}

func (h *Handler) decodeItem(w http.ResponseWriter, r *http.Request) (*itemPayload, bool) {
	var payload itemPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", "malformed request body")
		return nil, false
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
		return nil, false
	}
	return &payload, true
}

type positionResponse struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	Price           float64            `json:"price"`
	CommunistShares float64            `json:"communist_shares"`
	Deleted         bool               `json:"deleted"`
	Usages          map[string]float64 `json:"usages,omitempty"`
}

type transactionDetailsResponse struct {
	Value                  float64            `json:"value"`
	CurrencyIdentifier     string             `json:"currency_identifier"`
	CurrencyConversionRate float64            `json:"currency_conversion_rate"`
	BilledAt               string             `json:"billed_at"`
	Description            string             `json:"description"`
	Tags                   []string           `json:"tags,omitempty"`
	SplitMode              string             `json:"split_mode"`
	Deleted                bool               `json:"deleted"`
	CreditorShares         map[string]float64 `json:"creditor_shares,omitempty"`
	DebitorShares          map[string]float64 `json:"debitor_shares,omitempty"`
	Positions              []positionResponse `json:"positions,omitempty"`
}

type transactionResponse struct {
	ID            int64                                  `json:"id"`
	GroupID       int64                                  `json:"group_id"`
	Type          string                                 `json:"type"`
	Committed     *transactionDetailsResponse            `json:"committed,omitempty"`
	Pending       *transactionDetailsResponse            `json:"pending,omitempty"`
	PendingByUser map[string]*transactionDetailsResponse `json:"pending_by_user,omitempty"`
}

func toTransactionResponse(t *Transaction) *transactionResponse {
	resp := &transactionResponse{
		ID:        t.ID,
		GroupID:   t.GroupID,
		Type:      string(t.Type),
		Committed: toTransactionDetailsResponse(t.Committed),
		Pending:   toTransactionDetailsResponse(t.Pending),
	}
	if len(t.PendingByUser) > 0 {
		resp.PendingByUser = make(map[string]*transactionDetailsResponse, len(t.PendingByUser))
		for userID, details := range t.PendingByUser {
			resp.PendingByUser[strconv.FormatInt(userID, 10)] = toTransactionDetailsResponse(details)
		}
	}
	return resp
}

func toTransactionDetailsResponse(d *Details) *transactionDetailsResponse {
	if d == nil {
		return nil
	}
	resp := &transactionDetailsResponse{
		Value:                  d.Value,
		CurrencyIdentifier:     d.CurrencyIdentifier,
		CurrencyConversionRate: d.CurrencyConversionRate,
		BilledAt:               d.BilledAt.UTC().Format("2006-01-02"),
		Description:            d.Description,
		Tags:                   d.Tags,
		SplitMode:              string(d.SplitMode),
		Deleted:                d.Deleted,
		CreditorShares:         shareKeysToString(d.CreditorShares),
		DebitorShares:          shareKeysToString(d.DebitorShares),
	}
	for _, p := range d.Positions {
		resp.Positions = append(resp.Positions, positionResponse{
			ID:              p.ID,
			Name:            p.Name,
			Price:           p.Price,
			CommunistShares: p.CommunistShares,
			Deleted:         p.Deleted,
			Usages:          shareKeysToString(p.Usages),
		})
	}
	return resp
}

func shareKeysToString(shares map[int64]float64) map[string]float64 {
	if len(shares) == 0 {
		return nil
	}
	out := make(map[string]float64, len(shares))
	for id, w := range shares {
		out[strconv.FormatInt(id, 10)] = w
	}
	return out
}
