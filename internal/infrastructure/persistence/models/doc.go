// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: Base persistence models (BaseModel, AggregateModel, TenantAggregateModel)
// - ledger.go: Ledger context models (daily balances and cash transactions, in both
//   the legacy single-table layout and the partitioned layout)
// - correction.go: Correction queue model for ledger auto-repair
// - property.go: Property model
// - outbox.go: Outbox pattern model for event delivery
//
// Maintenance job run records live with the scheduler that owns them.
package models
