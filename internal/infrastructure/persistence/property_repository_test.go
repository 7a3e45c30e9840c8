package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/property"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPropertyTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PropertyModel{}))
	return db
}

func mustProperty(t *testing.T, tenantID uuid.UUID, name, code string) *property.Property {
	t.Helper()
	p, err := property.NewProperty(tenantID, name, code)
	require.NoError(t, err)
	return p
}

func TestGormPropertyRepository_SaveAndFind(t *testing.T) {
	db := setupPropertyTestDB(t)
	repo := NewGormPropertyRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	p := mustProperty(t, tenantID, "Seaside Hostel", "SEA-01")
	require.NoError(t, repo.Save(ctx, p))

	found, err := repo.FindByIDForTenant(ctx, tenantID, p.GetID())
	require.NoError(t, err)
	assert.Equal(t, "Seaside Hostel", found.Name)
	assert.Equal(t, "SEA-01", found.Code)
	assert.True(t, found.Active)

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByIDForTenant(ctx, tenantID, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("scoped to tenant", func(t *testing.T) {
		_, err := repo.FindByIDForTenant(ctx, uuid.New(), p.GetID())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormPropertyRepository_ExistsForTenant(t *testing.T) {
	db := setupPropertyTestDB(t)
	repo := NewGormPropertyRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	active := mustProperty(t, tenantID, "Harbor Inn", "HAR-01")
	require.NoError(t, repo.Save(ctx, active))

	inactive := mustProperty(t, tenantID, "Closed Lodge", "CLO-01")
	inactive.Deactivate()
	require.NoError(t, repo.Save(ctx, inactive))

	exists, err := repo.ExistsForTenant(ctx, tenantID, active.GetID())
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForTenant(ctx, tenantID, inactive.GetID())
	require.NoError(t, err)
	assert.False(t, exists, "deactivated properties must not pass existence checks")

	exists, err = repo.ExistsForTenant(ctx, uuid.New(), active.GetID())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormPropertyRepository_ListActive(t *testing.T) {
	db := setupPropertyTestDB(t)
	repo := NewGormPropertyRepository(db)
	ctx := context.Background()

	tenantA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	tenantB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	require.NoError(t, repo.Save(ctx, mustProperty(t, tenantB, "B Two", "B-02")))
	require.NoError(t, repo.Save(ctx, mustProperty(t, tenantA, "A One", "A-01")))
	require.NoError(t, repo.Save(ctx, mustProperty(t, tenantB, "B One", "B-01")))

	dropped := mustProperty(t, tenantA, "Gone", "A-99")
	dropped.Deactivate()
	require.NoError(t, repo.Save(ctx, dropped))

	properties, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, properties, 3)

	codes := make([]string, len(properties))
	for i, p := range properties {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"A-01", "B-01", "B-02"}, codes, "must group by tenant then order by code")
}
