package models

import (
	"github.com/stayops/backend/internal/domain/property"
)

// PropertyModel is the persistence model for the Property aggregate root.
type PropertyModel struct {
	TenantAggregateModel
	Name   string `gorm:"type:varchar(200);not null"`
	Code   string `gorm:"type:varchar(50);not null;uniqueIndex:idx_property_tenant_code,priority:2"`
	Active bool   `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string {
	return "properties"
}

// ToDomain converts the persistence model to a domain Property entity.
func (m *PropertyModel) ToDomain() *property.Property {
	p := &property.Property{
		Name:   m.Name,
		Code:   m.Code,
		Active: m.Active,
	}
	m.PopulateTenantAggregateRoot(&p.TenantAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain Property entity.
func (m *PropertyModel) FromDomain(p *property.Property) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.Name = p.Name
	m.Code = p.Code
	m.Active = p.Active
}

// PropertyModelFromDomain creates a new persistence model from a domain Property.
func PropertyModelFromDomain(p *property.Property) *PropertyModel {
	m := &PropertyModel{}
	m.FromDomain(p)
	return m
}
