package models

import (
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// PerformWrite executes a write transaction with retry logic for SQLite busy errors.
// This is a wrapper that delegates to cartridge's sqlite.PerformWrite implementation.
func PerformWrite(logger *slog.Logger, dbConn *gorm.DB, f func(tx *gorm.DB) error) error {
	return sqlite.PerformWrite(logger, dbConn, f)
}
