package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ledgerapp "github.com/stayops/backend/internal/application/ledger"
	"github.com/stayops/backend/internal/domain/ledger"
)

// LedgerHandler handles the daily cash ledger API endpoints: reports,
// operator overrides, recomputation and the validate/repair surface.
type LedgerHandler struct {
	BaseHandler
	reports    *ledgerapp.ReportService
	calculator *ledgerapp.CalculatorService
	validation *ledgerapp.ValidationService
	repair     *ledgerapp.RepairService
	queue      ledger.CorrectionQueue
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(
	reports *ledgerapp.ReportService,
	calculator *ledgerapp.CalculatorService,
	validation *ledgerapp.ValidationService,
	repair *ledgerapp.RepairService,
	queue ledger.CorrectionQueue,
) *LedgerHandler {
	return &LedgerHandler{
		reports:    reports,
		calculator: calculator,
		validation: validation,
		repair:     repair,
		queue:      queue,
	}
}

// ===================== Request/Response DTOs =====================

// DailyBalanceResponse represents a daily cash balance row in API responses
//
//	@Description	Daily cash balance response
type DailyBalanceResponse struct {
	ID                      string      `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TenantID                string      `json:"tenant_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	PropertyID              string      `json:"property_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	Date                    ledger.Date `json:"date"`
	OpeningBalanceCents     int64       `json:"opening_balance_cents" example:"0"`
	CashReceivedCents       int64       `json:"cash_received_cents" example:"5000"`
	BankReceivedCents       int64       `json:"bank_received_cents" example:"0"`
	CashExpensesCents       int64       `json:"cash_expenses_cents" example:"2000"`
	BankExpensesCents       int64       `json:"bank_expenses_cents" example:"0"`
	ClosingBalanceCents     int64       `json:"closing_balance_cents" example:"3000"`
	CalculatedClosingCents  int64       `json:"calculated_closing_cents" example:"3000"`
	BalanceDiscrepancyCents int64       `json:"balance_discrepancy_cents" example:"0"`
	OpeningAutoCalculated   bool        `json:"opening_auto_calculated" example:"true"`
	ClosingManuallySet      bool        `json:"closing_manually_set" example:"false"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
	Version                 int         `json:"version" example:"1"`
}

// RecomputeBalanceRequest represents a request to recompute one balance row
//
//	@Description	Recompute balance request
type RecomputeBalanceRequest struct {
	Date ledger.Date `json:"date" binding:"required"`
}

// OverrideOpeningRequest represents a request to override an opening balance
//
//	@Description	Override opening balance request
type OverrideOpeningRequest struct {
	OpeningBalanceCents *int64 `json:"opening_balance_cents" binding:"required" example:"150000"`
}

// OverrideClosingRequest represents a request to record a counted closing
//
//	@Description	Override closing balance request
type OverrideClosingRequest struct {
	ClosingBalanceCents *int64 `json:"closing_balance_cents" binding:"required" example:"149500"`
}

// ValidateLedgerRequest represents the range of a validation run
//
//	@Description	Validate ledger request
type ValidateLedgerRequest struct {
	From ledger.Date `json:"from" binding:"required"`
	To   ledger.Date `json:"to" binding:"required"`
}

// RepairLedgerRequest represents the range and mode of a repair run
//
//	@Description	Repair ledger request
type RepairLedgerRequest struct {
	From   ledger.Date `json:"from" binding:"required"`
	To     ledger.Date `json:"to" binding:"required"`
	DryRun bool        `json:"dry_run"`
}

// DeadCorrectionResponse represents an exhausted correction item
//
//	@Description	Dead correction response
type DeadCorrectionResponse struct {
	ID                    string      `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	PropertyID            string      `json:"property_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	TargetDate            ledger.Date `json:"target_date"`
	Reason                string      `json:"reason" example:"CASCADE_MISMATCH"`
	CorrectedOpeningCents *int64      `json:"corrected_opening_cents,omitempty"`
	Attempts              int         `json:"attempts" example:"5"`
	MaxAttempts           int         `json:"max_attempts" example:"5"`
	LastError             string      `json:"last_error,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// DeadCorrectionListFilter represents pagination for the dead correction list
//
//	@Description	Dead correction list filter
type DeadCorrectionListFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1" example:"1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100" json:"page_size" example:"20"`
}

// ===================== Report Handlers =====================

// GetDailyReport godoc
// @ID           getLedgerDailyReport
//
//	@Summary		Get daily cash report
//	@Description	Get the cash ledger read model for one property and business date. Absent rows are reported with has_record=false rather than computed on the fly.
//	@Tags			ledger
//	@Produce		json
//	@Param			propertyId	path		string	true	"Property ID"
//	@Param			date		path		string	true	"Business date (YYYY-MM-DD)"
//	@Success		200			{object}	APIResponse[ledger.DailyReport]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/daily/{date} [get]
func (h *LedgerHandler) GetDailyReport(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}
	date, err := ledger.ParseDate(c.Param("date"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_DATE", "Date must be formatted YYYY-MM-DD")
		return
	}

	report, err := h.reports.DailyReport(c.Request.Context(), tenantID, propertyID, date)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}

// GetMonthlyReport godoc
// @ID           getLedgerMonthlyReport
//
//	@Summary		Get monthly cash report
//	@Description	Get the month rollup for one property: opening from the first tracked day, closing from the last, and movement totals across the month.
//	@Tags			ledger
//	@Produce		json
//	@Param			propertyId	path		string	true	"Property ID"
//	@Param			month		path		string	true	"Month (YYYY-MM)"
//	@Success		200			{object}	APIResponse[ledger.MonthlyReport]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/monthly/{month} [get]
func (h *LedgerHandler) GetMonthlyReport(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}
	month, err := ledger.ParseYearMonth(c.Param("month"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_DATE", "Month must be formatted YYYY-MM")
		return
	}

	report, err := h.reports.MonthlyReport(c.Request.Context(), tenantID, propertyID, month)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}

// ===================== Balance Handlers =====================

// RecomputeBalance godoc
// @ID           recomputeLedgerBalance
//
//	@Summary		Recompute daily balance
//	@Description	Rebuild the balance row for one property and business date from its approved transactions. Recomputation is idempotent; unchanged inputs produce an identical row.
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			propertyId	path		string					true	"Property ID"
//	@Param			request		body		RecomputeBalanceRequest	true	"Date to recompute"
//	@Success		200			{object}	APIResponse[DailyBalanceResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/recompute [post]
func (h *LedgerHandler) RecomputeBalance(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}

	var req RecomputeBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	balance, err := h.calculator.Recompute(c.Request.Context(), tenantID, propertyID, req.Date)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toBalanceResponse(balance))
}

// OverrideOpening godoc
// @ID           overrideLedgerOpening
//
//	@Summary		Override opening balance
//	@Description	Pin a day's opening balance to an operator-supplied value and rederive its closing. An overridden opening starts a new chain.
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			propertyId	path		string					true	"Property ID"
//	@Param			date		path		string					true	"Business date (YYYY-MM-DD)"
//	@Param			request		body		OverrideOpeningRequest	true	"Opening balance in cents"
//	@Success		200			{object}	APIResponse[DailyBalanceResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/daily/{date}/opening [put]
func (h *LedgerHandler) OverrideOpening(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}
	date, err := ledger.ParseDate(c.Param("date"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_DATE", "Date must be formatted YYYY-MM-DD")
		return
	}

	var req OverrideOpeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	balance, err := h.calculator.OverrideOpening(c.Request.Context(), tenantID, propertyID, date, *req.OpeningBalanceCents)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toBalanceResponse(balance))
}

// OverrideClosing godoc
// @ID           overrideLedgerClosing
//
//	@Summary		Override closing balance
//	@Description	Record an operator-counted closing balance. The calculated closing is kept alongside and the difference is tracked as the discrepancy.
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			propertyId	path		string					true	"Property ID"
//	@Param			date		path		string					true	"Business date (YYYY-MM-DD)"
//	@Param			request		body		OverrideClosingRequest	true	"Counted closing balance in cents"
//	@Success		200			{object}	APIResponse[DailyBalanceResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/daily/{date}/closing [put]
func (h *LedgerHandler) OverrideClosing(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	userID, err := getUserID(c)
	if err != nil || userID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}
	date, err := ledger.ParseDate(c.Param("date"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_DATE", "Date must be formatted YYYY-MM-DD")
		return
	}

	var req OverrideClosingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	balance, err := h.calculator.OverrideClosing(c.Request.Context(), tenantID, propertyID, date, *req.ClosingBalanceCents, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toBalanceResponse(balance))
}

// ===================== Validate/Repair Handlers =====================

// ValidateLedger godoc
// @ID           validateLedger
//
//	@Summary		Validate ledger consistency
//	@Description	Run the read-only consistency checks over one property's date range: chain breaks, out-of-tolerance discrepancies, missing rows and duplicate rows. Nothing is written; the findings are the result.
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			propertyId	path		string					true	"Property ID"
//	@Param			request		body		ValidateLedgerRequest	true	"Date range to validate"
//	@Success		200			{object}	APIResponse[ledger.ValidationReport]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/validate [post]
func (h *LedgerHandler) ValidateLedger(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}

	var req ValidateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	report, err := h.validation.Validate(c.Request.Context(), tenantID, propertyID, req.From, req.To)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}

// RepairLedger godoc
// @ID           repairLedger
//
//	@Summary		Repair ledger inconsistencies
//	@Description	Validate the range and enqueue corrections for repairable findings, oldest date first. With dry_run the planned corrections are reported and nothing is queued. Discrepancies and duplicates are reported but never auto-repaired.
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			propertyId	path		string				true	"Property ID"
//	@Param			request		body		RepairLedgerRequest	true	"Date range and mode"
//	@Success		200			{object}	APIResponse[ledger.RepairReport]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/ledger/properties/{propertyId}/repair [post]
func (h *LedgerHandler) RepairLedger(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	propertyID, err := uuid.Parse(c.Param("propertyId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}

	var req RepairLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	report, err := h.repair.Repair(c.Request.Context(), tenantID, propertyID, req.From, req.To, req.DryRun)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}

// ListDeadCorrections godoc
// @ID           listDeadCorrections
//
//	@Summary		List dead corrections
//	@Description	List corrections that exhausted their retries and require manual review. Dead items stay here until an operator resolves them.
//	@Tags			ledger
//	@Produce		json
//	@Param			page		query		int	false	"Page number"	default(1)
//	@Param			page_size	query		int	false	"Page size"		default(20)
//	@Success		200			{object}	APIResponse[[]DeadCorrectionResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/ledger/corrections/dead [get]
func (h *LedgerHandler) ListDeadCorrections(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	var filter DeadCorrectionListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	items, total, err := h.queue.FindDead(c.Request.Context(), filter.Page, filter.PageSize)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	response := make([]DeadCorrectionResponse, 0, len(items))
	for _, item := range items {
		if item.TenantID != tenantID {
			continue
		}
		response = append(response, DeadCorrectionResponse{
			ID:                    item.ID.String(),
			PropertyID:            item.PropertyID.String(),
			TargetDate:            item.TargetDate,
			Reason:                string(item.Reason),
			CorrectedOpeningCents: item.CorrectedOpeningCents,
			Attempts:              item.Attempts,
			MaxAttempts:           item.MaxAttempts,
			LastError:             item.LastError,
			CreatedAt:             item.CreatedAt,
			UpdatedAt:             item.UpdatedAt,
		})
	}
	h.SuccessWithMeta(c, response, total, filter.Page, filter.PageSize)
}

// ===================== Helper Functions =====================

func toBalanceResponse(balance *ledger.DailyCashBalance) DailyBalanceResponse {
	return DailyBalanceResponse{
		ID:                      balance.ID.String(),
		TenantID:                balance.TenantID.String(),
		PropertyID:              balance.PropertyID.String(),
		Date:                    balance.Date,
		OpeningBalanceCents:     balance.OpeningBalanceCents,
		CashReceivedCents:       balance.CashReceivedCents,
		BankReceivedCents:       balance.BankReceivedCents,
		CashExpensesCents:       balance.CashExpensesCents,
		BankExpensesCents:       balance.BankExpensesCents,
		ClosingBalanceCents:     balance.ClosingBalanceCents,
		CalculatedClosingCents:  balance.CalculatedClosingCents,
		BalanceDiscrepancyCents: balance.BalanceDiscrepancyCents,
		OpeningAutoCalculated:   balance.OpeningAutoCalculated,
		ClosingManuallySet:      balance.ClosingManuallySet,
		CreatedAt:               balance.CreatedAt,
		UpdatedAt:               balance.UpdatedAt,
		Version:                 balance.Version,
	}
}

// RegisterRoutes registers all ledger routes
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	ledgerGroup := rg.Group("/ledger")
	{
		properties := ledgerGroup.Group("/properties/:propertyId")
		{
			properties.GET("/daily/:date", h.GetDailyReport)
			properties.PUT("/daily/:date/opening", h.OverrideOpening)
			properties.PUT("/daily/:date/closing", h.OverrideClosing)
			properties.GET("/monthly/:month", h.GetMonthlyReport)
			properties.POST("/recompute", h.RecomputeBalance)
			properties.POST("/validate", h.ValidateLedger)
			properties.POST("/repair", h.RepairLedger)
		}
		ledgerGroup.GET("/corrections/dead", h.ListDeadCorrections)
	}
}
