// Package sqlite opens the SQLite databases used for corpus run history.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Use Open instead of sql.Open so the driver matching the build is used.
package sqlite

import (
	"database/sql"
	"fmt"
)

// DriverName returns the database/sql driver name for this build.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" or "purego".
func DriverType() string {
	return driverType
}

// IsCGO reports whether the CGO driver is linked in.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens the database at path, enables foreign keys and limits the
// pool to one connection so writers never see SQLITE_BUSY from each
// other.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite %s: %w", path, err)
	}
	return db, nil
}

// OpenReadOnly opens an existing database without write access.
func OpenReadOnly(path string) (*sql.DB, error) {
	return sql.Open(driverName, "file:"+path+"?mode=ro")
}

// Info describes the linked driver.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns the driver description shown by the version command.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
