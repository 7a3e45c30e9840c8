package tenant

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stayops/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// guardedModel maps a tenant-owned table
type guardedModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;index"`
	Name     string
}

// plainModel maps a table without a tenant column
type plainModel struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func setupCallbackMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func callbackTestContext(tenantID string) context.Context {
	ctx := context.Background()
	if tenantID != "" {
		log := logger.FromContext(ctx)
		ctx, _ = logger.WithTenantID(ctx, log, tenantID)
	}
	return ctx
}

func TestNewTenantCallback_DefaultColumn(t *testing.T) {
	tc := NewTenantCallback("", true)
	assert.Equal(t, "tenant_id", tc.tenantColumn)
	assert.True(t, tc.required)
}

func TestNewTenantCallback_CustomColumn(t *testing.T) {
	tc := NewTenantCallback("org_id", false)
	assert.Equal(t, "org_id", tc.tenantColumn)
	assert.False(t, tc.required)
}

func TestTenantCallback_InjectsFilter(t *testing.T) {
	db, mock, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	EnableAutoTenantFilter(db, false)

	tenantID := uuid.New().String()
	mock.ExpectQuery(`SELECT \* FROM "guarded_models" WHERE "guarded_models"\."tenant_id" = \$1`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

	var results []guardedModel
	err := db.WithContext(callbackTestContext(tenantID)).Find(&results).Error

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantCallback_SkipsWhenAlreadyFiltered(t *testing.T) {
	db, mock, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	EnableAutoTenantFilter(db, false)

	tenantID := uuid.New().String()
	// Exactly one tenant predicate: the explicit one from the repository.
	mock.ExpectQuery(`^SELECT \* FROM "guarded_models" WHERE tenant_id = \$1$`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

	var results []guardedModel
	err := db.WithContext(callbackTestContext(tenantID)).
		Where("tenant_id = ?", tenantID).
		Find(&results).Error

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantCallback_SkipsTablesWithoutTenantColumn(t *testing.T) {
	db, mock, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	// Required, but the table is not tenant-owned: no filter, no error.
	EnableAutoTenantFilter(db, true)

	mock.ExpectQuery(`^SELECT \* FROM "plain_models"$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	var results []plainModel
	err := db.WithContext(context.Background()).Find(&results).Error

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantCallback_RequiredEnforcement(t *testing.T) {
	db, _, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	EnableAutoTenantFilter(db, true)

	var results []guardedModel
	err := db.WithContext(context.Background()).Find(&results).Error

	assert.ErrorIs(t, err, ErrTenantIDRequired)
}

func TestTenantCallback_InvalidUUID(t *testing.T) {
	db, _, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	EnableAutoTenantFilter(db, true)

	var results []guardedModel
	err := db.WithContext(callbackTestContext("not-a-valid-uuid")).Find(&results).Error

	assert.ErrorIs(t, err, ErrInvalidTenantID)
}

func TestTenantCallback_NotRequired(t *testing.T) {
	db, mock, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	EnableAutoTenantFilter(db, false)

	mock.ExpectQuery(`^SELECT \* FROM "guarded_models"$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

	var results []guardedModel
	err := db.WithContext(context.Background()).Find(&results).Error

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisableAutoTenantFilter(t *testing.T) {
	db, mock, mockDB := setupCallbackMockDB(t)
	defer mockDB.Close()

	EnableAutoTenantFilter(db, true)
	DisableAutoTenantFilter(db)

	// With the callbacks removed a tenant-less query passes through.
	mock.ExpectQuery(`^SELECT \* FROM "guarded_models"$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}))

	var results []guardedModel
	err := db.WithContext(context.Background()).Find(&results).Error

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
