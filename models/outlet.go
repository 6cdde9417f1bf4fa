package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
)

// Outlet is a physical store/branch. Master data is owned by the external
// outlet service; this table is the minimal local projection needed for
// transfer destination lookups and tenant scoping.
type Outlet struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetOutlets(ctx context.Context) ([]*Outlet, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Outlet](ctx, businessId)
}

func validateOutletExists(ctx context.Context, businessId string, outletId int) error {
	if err := utils.ValidateResourceId[Outlet](ctx, businessId, outletId); err != nil {
		return errors.New("outlet not found")
	}
	return nil
}
