package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	ledgerapp "github.com/stayops/backend/internal/application/ledger"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/interfaces/http/dto"
)

// CashTransactionHandler handles cash transaction API endpoints
type CashTransactionHandler struct {
	BaseHandler
	transactions *ledgerapp.TransactionService
	approvals    *ledgerapp.ApprovalService
}

// NewCashTransactionHandler creates a new CashTransactionHandler
func NewCashTransactionHandler(transactions *ledgerapp.TransactionService, approvals *ledgerapp.ApprovalService) *CashTransactionHandler {
	return &CashTransactionHandler{
		transactions: transactions,
		approvals:    approvals,
	}
}

// ===================== Request/Response DTOs =====================

// CashTransactionResponse represents a cash transaction in API responses
//
//	@Description	Cash transaction response
type CashTransactionResponse struct {
	ID              string      `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TenantID        string      `json:"tenant_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	PropertyID      string      `json:"property_id" example:"550e8400-e29b-41d4-a716-446655440002"`
	Kind            string      `json:"kind" example:"REVENUE"`
	PaymentMode     string      `json:"payment_mode" example:"CASH"`
	AmountCents     int64       `json:"amount_cents" example:"5000"`
	Amount          string      `json:"amount" example:"50.00"`
	OccurredOn      ledger.Date `json:"occurred_on"`
	Description     string      `json:"description,omitempty" example:"Front desk walk-in"`
	Reference       string      `json:"reference,omitempty" example:"FOLIO-1042"`
	Status          string      `json:"status" example:"PENDING"`
	ApprovedBy      *string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty"`
	RejectedBy      *string     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time  `json:"rejected_at,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Version         int         `json:"version" example:"1"`
}

// TransactionDecisionResponse is the approve/reject outcome. RecomputeDeferred
// reports that the decision was committed but the synchronous balance
// recompute failed and will be retried in the background.
//
//	@Description	Transaction decision response
type TransactionDecisionResponse struct {
	CashTransactionResponse
	RecomputeDeferred bool `json:"recompute_deferred,omitempty"`
}

// RejectTransactionRequest represents a request to reject a transaction
//
//	@Description	Reject transaction request
type RejectTransactionRequest struct {
	Reason string `json:"reason" binding:"required" example:"Duplicate of FOLIO-1042"`
}

// TransactionListFilter represents filter parameters for the transaction list
//
//	@Description	Transaction list filter
type TransactionListFilter struct {
	PropertyID  string `form:"property_id" binding:"required,uuid"`
	Kind        string `form:"kind"`
	PaymentMode string `form:"payment_mode" json:"payment_mode"`
	Status      string `form:"status"`
	FromDate    string `form:"from_date" json:"from_date"`
	ToDate      string `form:"to_date" json:"to_date"`
	Page        int    `form:"page,omitempty" binding:"omitempty,min=1" example:"1"`
	PageSize    int    `form:"page_size,omitempty" binding:"omitempty,min=1,max=100" json:"page_size" example:"20"`
}

// ===================== Transaction Handlers =====================

// RecordTransaction godoc
// @ID           recordCashTransaction
//
//	@Summary		Record cash transaction
//	@Description	Record a new pending cash transaction for a property and business date
//	@Tags			transactions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ledgerapp.RecordTransactionRequest	true	"Transaction to record"
//	@Success		201		{object}	APIResponse[CashTransactionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/transactions [post]
func (h *CashTransactionHandler) RecordTransaction(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	var req ledgerapp.RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	txn, err := h.transactions.Record(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.Response{
		Success: true,
		Data:    toTransactionResponse(txn),
	})
}

// GetTransaction godoc
// @ID           getCashTransaction
//
//	@Summary		Get cash transaction by ID
//	@Description	Get a single cash transaction by its ID
//	@Tags			transactions
//	@Produce		json
//	@Param			id	path		string	true	"Transaction ID"
//	@Success		200	{object}	APIResponse[CashTransactionResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/transactions/{id} [get]
func (h *CashTransactionHandler) GetTransaction(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid transaction ID")
		return
	}

	txn, err := h.transactions.Get(c.Request.Context(), tenantID, transactionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toTransactionResponse(txn))
}

// ListTransactions godoc
// @ID           listCashTransactions
//
//	@Summary		List cash transactions
//	@Description	List a property's cash transactions with filtering
//	@Tags			transactions
//	@Produce		json
//	@Param			property_id		query		string	true	"Property ID"
//	@Param			kind			query		string	false	"Filter by kind"			Enums(REVENUE, EXPENSE)
//	@Param			payment_mode	query		string	false	"Filter by payment mode"	Enums(CASH, BANK)
//	@Param			status			query		string	false	"Filter by status"			Enums(PENDING, APPROVED, REJECTED)
//	@Param			from_date		query		string	false	"Filter from business date (YYYY-MM-DD)"
//	@Param			to_date			query		string	false	"Filter to business date (YYYY-MM-DD)"
//	@Param			page			query		int		false	"Page number"	default(1)
//	@Param			page_size		query		int		false	"Page size"		default(20)
//	@Success		200				{object}	APIResponse[[]CashTransactionResponse]
//	@Failure		400				{object}	ErrorResponse
//	@Failure		401				{object}	ErrorResponse
//	@Router			/transactions [get]
func (h *CashTransactionHandler) ListTransactions(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil || tenantID == uuid.Nil {
		h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid tenant")
		return
	}

	var filter TransactionListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	propertyID, err := uuid.Parse(filter.PropertyID)
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid property ID")
		return
	}

	serviceFilter, err := filter.toServiceFilter()
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	txns, err := h.transactions.List(c.Request.Context(), tenantID, propertyID, serviceFilter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	response := make([]CashTransactionResponse, len(txns))
	for i := range txns {
		response[i] = toTransactionResponse(&txns[i])
	}
	h.Success(c, response)
}

// ApproveTransaction godoc
// @ID           approveCashTransaction
//
//	@Summary		Approve cash transaction
//	@Description	Approve a pending transaction so it enters the day's ledger. The affected daily balance is recomputed synchronously; when the recompute fails the decision stands and recompute_deferred is set.
//	@Tags			transactions
//	@Accept			json
//	@Produce		json
//	@Param			id	path		string	true	"Transaction ID"
//	@Success		200	{object}	APIResponse[TransactionDecisionResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		422	{object}	ErrorResponse
//	@Router			/transactions/{id}/approve [post]
func (h *CashTransactionHandler) ApproveTransaction(c *gin.Context) {
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

	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid transaction ID")
		return
	}

	txn, err := h.approvals.Approve(c.Request.Context(), tenantID, transactionID, userID)
	if err != nil && !errors.Is(err, ledgerapp.ErrRecomputeDeferred) {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, TransactionDecisionResponse{
		CashTransactionResponse: toTransactionResponse(txn),
		RecomputeDeferred:       errors.Is(err, ledgerapp.ErrRecomputeDeferred),
	})
}

// RejectTransaction godoc
// @ID           rejectCashTransaction
//
//	@Summary		Reject cash transaction
//	@Description	Reject a pending transaction with a reason. Rejected transactions never enter a balance.
//	@Tags			transactions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Transaction ID"
//	@Param			request	body		RejectTransactionRequest	true	"Rejection reason"
//	@Success		200		{object}	APIResponse[TransactionDecisionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/transactions/{id}/reject [post]
func (h *CashTransactionHandler) RejectTransaction(c *gin.Context) {
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

	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid transaction ID")
		return
	}

	var req RejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	txn, err := h.approvals.Reject(c.Request.Context(), tenantID, transactionID, userID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, TransactionDecisionResponse{CashTransactionResponse: toTransactionResponse(txn)})
}

// ===================== Helper Functions =====================

func (f TransactionListFilter) toServiceFilter() (ledger.TransactionFilter, error) {
	filter := ledger.TransactionFilter{Filter: shared.Filter{Page: f.Page, PageSize: f.PageSize}}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	if f.Kind != "" {
		kind := ledger.TransactionKind(f.Kind)
		filter.Kind = &kind
	}
	if f.PaymentMode != "" {
		mode := ledger.PaymentMode(f.PaymentMode)
		filter.PaymentMode = &mode
	}
	if f.Status != "" {
		status := ledger.TransactionStatus(f.Status)
		filter.Status = &status
	}
	if f.FromDate != "" {
		from, err := ledger.ParseDate(f.FromDate)
		if err != nil {
			return filter, shared.NewDomainError("INVALID_DATE", "from_date must be formatted YYYY-MM-DD")
		}
		filter.FromDate = &from
	}
	if f.ToDate != "" {
		to, err := ledger.ParseDate(f.ToDate)
		if err != nil {
			return filter, shared.NewDomainError("INVALID_DATE", "to_date must be formatted YYYY-MM-DD")
		}
		filter.ToDate = &to
	}
	return filter, nil
}

func toTransactionResponse(txn *ledger.CashTransaction) CashTransactionResponse {
	var approvedBy, rejectedBy *string
	if txn.ApprovedBy != nil {
		s := txn.ApprovedBy.String()
		approvedBy = &s
	}
	if txn.RejectedBy != nil {
		s := txn.RejectedBy.String()
		rejectedBy = &s
	}

	return CashTransactionResponse{
		ID:              txn.ID.String(),
		TenantID:        txn.TenantID.String(),
		PropertyID:      txn.PropertyID.String(),
		Kind:            string(txn.Kind),
		PaymentMode:     string(txn.PaymentMode),
		AmountCents:     txn.AmountCents,
		Amount:          decimal.New(txn.AmountCents, -2).StringFixed(2),
		OccurredOn:      txn.OccurredOn,
		Description:     txn.Description,
		Reference:       txn.Reference,
		Status:          string(txn.Status),
		ApprovedBy:      approvedBy,
		ApprovedAt:      txn.ApprovedAt,
		RejectedBy:      rejectedBy,
		RejectedAt:      txn.RejectedAt,
		RejectionReason: txn.RejectionReason,
		CreatedAt:       txn.CreatedAt,
		UpdatedAt:       txn.UpdatedAt,
		Version:         txn.Version,
	}
}

// RegisterRoutes registers all cash transaction routes
func (h *CashTransactionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	transactions := rg.Group("/transactions")
	{
		transactions.GET("", h.ListTransactions)
		transactions.GET("/:id", h.GetTransaction)
		transactions.POST("", h.RecordTransaction)
		transactions.POST("/:id/approve", h.ApproveTransaction)
		transactions.POST("/:id/reject", h.RejectTransaction)
	}
}
