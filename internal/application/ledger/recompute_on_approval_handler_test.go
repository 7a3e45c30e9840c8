package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func approvedEvent(t *testing.T, tenantID, propertyID uuid.UUID, date ledger.Date) *ledger.CashTransactionApprovedEvent {
	t.Helper()
	txn := newPendingTransaction(t, tenantID, propertyID, date)
	require.NoError(t, txn.Approve(uuid.New()))
	return ledger.NewCashTransactionApprovedEvent(txn)
}

func TestRecomputeOnApprovalHandler_Recomputes(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()
	txns := newFakeTxnRepo()
	txns.sums[d("2024-03-10")] = ledger.TransactionSums{CashReceivedCents: 5000, CashExpensesCents: 2000}

	handler := NewRecomputeOnApprovalHandler(newCalculator(balances, txns, newFakePropertyRepo(propertyID)), zap.NewNop())
	err := handler.Handle(context.Background(), approvedEvent(t, tenantID, propertyID, d("2024-03-10")))
	require.NoError(t, err)

	row := balances.get(tenantID, propertyID, d("2024-03-10"))
	require.NotNil(t, row)
	assert.Equal(t, int64(3000), row.ClosingBalanceCents)
}

func TestRecomputeOnApprovalHandler_RejectsWrongEventType(t *testing.T) {
	handler := NewRecomputeOnApprovalHandler(newCalculator(newFakeBalanceRepo(), newFakeTxnRepo(), newFakePropertyRepo()), zap.NewNop())

	txn := newPendingTransaction(t, uuid.New(), uuid.New(), d("2024-03-10"))
	err := handler.Handle(context.Background(), ledger.NewCashTransactionRecordedEvent(txn))
	assert.ErrorContains(t, err, "unexpected event type")
}

func TestRecomputeOnApprovalHandler_DropsDeterministicRejections(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	// The property repo knows nothing, so the recompute fails with a domain
	// error. Redelivery cannot change that outcome, so the handler consumes
	// the event instead of erroring.
	handler := NewRecomputeOnApprovalHandler(newCalculator(newFakeBalanceRepo(), newFakeTxnRepo(), newFakePropertyRepo()), zap.NewNop())

	err := handler.Handle(context.Background(), approvedEvent(t, tenantID, propertyID, d("2024-03-10")))
	assert.NoError(t, err)
}

func TestRecomputeOnApprovalHandler_RetriesInfrastructureErrors(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()
	balances.upsertErr = errors.New("connection reset")

	handler := NewRecomputeOnApprovalHandler(newCalculator(balances, newFakeTxnRepo(), newFakePropertyRepo(propertyID)), zap.NewNop())
	err := handler.Handle(context.Background(), approvedEvent(t, tenantID, propertyID, d("2024-03-10")))
	require.Error(t, err)

	var domainErr *shared.DomainError
	assert.False(t, errors.As(err, &domainErr))
	assert.ErrorContains(t, err, "connection reset")
}
