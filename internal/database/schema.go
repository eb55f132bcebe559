package database

import "github.com/tranthanhvu011/DTWH/internal/models"

var ControlMigrations = MigrationSet{
	Schema: "control",
	Migrations: []Migration{
		{Version: 1, Name: "create logs", Up: autoMigrate(&models.LogEntry{})},
	},
}

var StagingMigrations = MigrationSet{
	Schema: "staging",
	Migrations: []Migration{
		{Version: 1, Name: "create staging tables", Up: autoMigrate(
			&models.StagingProduct{},
			&models.StagingImage{},
			&models.StagingSpecification{},
		)},
	},
}

var WarehouseMigrations = MigrationSet{
	Schema: "warehouse",
	Migrations: []Migration{
		{Version: 1, Name: "create product dimension", Up: autoMigrate(
			&models.WarehouseProduct{},
			&models.WarehouseImage{},
			&models.WarehouseSpecification{},
		)},
		{Version: 2, Name: "create date dimension", Up: autoMigrate(&models.DimDate{})},
	},
}

var DataMartMigrations = MigrationSet{
	Schema: "datamart",
	Migrations: []Migration{
		{Version: 1, Name: "create datamart products", Up: autoMigrate(&models.MartProduct{})},
	},
}
