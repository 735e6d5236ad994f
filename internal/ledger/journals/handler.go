package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledgershared "github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/httpx"
	"github.com/0x3b3fc/erp-pro-sub001/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type lineRequest struct {
	AccountID    string          `json:"account_id" validate:"required,uuid4"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Description  string          `json:"description" validate:"max=500"`
	CostCenterID *string         `json:"cost_center_id,omitempty" validate:"omitempty,uuid4"`
}

type createEntryRequest struct {
	Date        string        `json:"date" validate:"required,datetime=2006-01-02"`
	Reference   string        `json:"reference" validate:"max=100"`
	Description string        `json:"description" validate:"max=500"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type lineResponse struct {
	LineNo       int             `json:"line_no"`
	AccountID    uuid.UUID       `json:"account_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Description  string          `json:"description,omitempty"`
	CostCenterID *uuid.UUID      `json:"cost_center_id,omitempty"`
}

type entryResponse struct {
	ID              uuid.UUID       `json:"id"`
	EntryNumber     string          `json:"entry_number"`
	Date            string          `json:"date"`
	Reference       string          `json:"reference,omitempty"`
	Description     string          `json:"description,omitempty"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	Status          EntryStatus     `json:"status"`
	SourceType      string          `json:"source_type,omitempty"`
	SourceID        *uuid.UUID      `json:"source_id,omitempty"`
	ReversesEntryID *uuid.UUID      `json:"reverses_entry_id,omitempty"`
	Lines           []lineResponse  `json:"lines,omitempty"`
}

func toEntryResponse(entry JournalEntry) entryResponse {
	resp := entryResponse{
		ID:              entry.ID,
		EntryNumber:     entry.EntryNumber,
		Date:            entry.Date.Format("2006-01-02"),
		Reference:       entry.Reference,
		Description:     entry.Description,
		TotalDebit:      entry.TotalDebit,
		TotalCredit:     entry.TotalCredit,
		Status:          entry.Status,
		SourceType:      entry.SourceType,
		SourceID:        entry.SourceID,
		ReversesEntryID: entry.ReversesEntryID,
	}
	for _, line := range entry.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			LineNo:       line.LineNo,
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Description:  line.Description,
			CostCenterID: line.CostCenterID,
		})
	}
	return resp
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	entries, err := h.service.List(r.Context(), tenantID, 50, 0)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), tenantID, entryID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

// Create records a manual journal entry. Manual entries start as drafts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	input := PostingInput{
		TenantID:    shared.TenantFromContext(r.Context()),
		ActorID:     shared.ActorFromContext(r.Context()),
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		Status:      StatusDraft,
	}
	for _, line := range req.Lines {
		accountID, err := uuid.Parse(line.AccountID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
			return
		}
		in := LineInput{
			AccountID:   accountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		}
		if line.CostCenterID != nil {
			centerID, err := uuid.Parse(*line.CostCenterID)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cost center id")
				return
			}
			in.CostCenterID = &centerID
		}
		input.Lines = append(input.Lines, in)
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	actorID := shared.ActorFromContext(r.Context())
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.PostDraft(r.Context(), tenantID, actorID, entryID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
	}
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{
		TenantID:    shared.TenantFromContext(r.Context()),
		ActorID:     shared.ActorFromContext(r.Context()),
		EntryID:     entryID,
		Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(reversal))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), shared.TenantFromContext(r.Context()), shared.ActorFromContext(r.Context()), entryID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgershared.ErrEntryNotFound), errors.Is(err, ledgershared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledgershared.ErrTooFewLines),
		errors.Is(err, ledgershared.ErrLineSign),
		errors.Is(err, ledgershared.ErrUnbalanced),
		errors.Is(err, ledgershared.ErrInvalidAccount),
		errors.Is(err, ledgershared.ErrNoOpenFiscalYear):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ledgershared.ErrAlreadyReversed), errors.Is(err, ledgershared.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledgershared.ErrEntryNumberConflict):
		httpx.Problem(w, http.StatusServiceUnavailable, "Transient Conflict", err.Error())
	default:
		h.logger.Error("journal request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
