package purchasing

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
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validator.New()}
}

type billLineRequest struct {
	ProductID   *string         `json:"product_id,omitempty" validate:"omitempty,uuid4"`
	WarehouseID *string         `json:"warehouse_id,omitempty" validate:"omitempty,uuid4"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

type createBillRequest struct {
	SupplierID string            `json:"supplier_id" validate:"required,uuid4"`
	Date       string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Lines      []billLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type setPostingAccountRequest struct {
	Key       string `json:"key" validate:"required,oneof=AP INVENTORY VAT_INPUT PURCHASE_EXPENSE"`
	AccountID string `json:"account_id" validate:"required,uuid4"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	bills, err := h.service.List(r.Context(), shared.TenantFromContext(r.Context()), 50, 0)
	if err != nil {
		h.logger.Error("list bills", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bills)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bill id")
		return
	}
	bill, err := h.service.Get(r.Context(), shared.TenantFromContext(r.Context()), billID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplier id")
		return
	}
	input := CreateBillInput{
		TenantID:   shared.TenantFromContext(r.Context()),
		ActorID:    shared.ActorFromContext(r.Context()),
		SupplierID: supplierID,
	}
	if req.Date != "" {
		input.Date, _ = time.Parse("2006-01-02", req.Date)
	}
	for _, line := range req.Lines {
		in := LineInput{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
		}
		if line.ProductID != nil {
			productID, err := uuid.Parse(*line.ProductID)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
				return
			}
			in.ProductID = &productID
		}
		if line.WarehouseID != nil {
			warehouseID, err := uuid.Parse(*line.WarehouseID)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
				return
			}
			in.WarehouseID = &warehouseID
		}
		input.Lines = append(input.Lines, in)
	}
	bill, err := h.service.CreateBill(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

// Post approves a bill. An Idempotency-Key header guards against double
// submission; replays get 409 before the service runs.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bill id")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "purchasing"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}
	bill, err := h.service.PostBill(r.Context(), shared.TenantFromContext(r.Context()), shared.ActorFromContext(r.Context()), billID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) GetPostingConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetPostingAccounts(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.logger.Error("get posting config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) SetPostingConfig(w http.ResponseWriter, r *http.Request) {
	var req setPostingAccountRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	if err := h.service.SetPostingAccount(r.Context(), shared.TenantFromContext(r.Context()), shared.ActorFromContext(r.Context()), req.Key, accountID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBillNotFound), errors.Is(err, ledgershared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrMissingSystemAccount),
		errors.Is(err, ErrBadPostingAccount),
		errors.Is(err, ErrEmptyBill),
		errors.Is(err, ErrZeroTotalBill),
		errors.Is(err, ledgershared.ErrNoOpenFiscalYear),
		errors.Is(err, ledgershared.ErrUnbalanced),
		errors.Is(err, ledgershared.ErrInvalidAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("bill request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
