package models

import (
	"bitbucket.org/mmdatafocus/purchasing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	logger := config.GetLogger()

	err := db.AutoMigrate(
		&Outlet{},
		&Product{},
		&PurchaseOrder{},
		&PurchaseOrderDetail{},
		&InventoryTransfer{},
		&InventoryTransferDetail{},
	)
	if err != nil {
		config.LogError(logger, "migration", "MigrateTable", "auto migrate", nil, err)
		panic(err)
	}
	logger.Info("database migration completed")
}
