// Package database handles the destination database connection and table
// inspection.
//
// It wraps GORM to configure MySQL, PostgreSQL or SQLite connections from the
// application's configuration.
//
// # Connect
//
// Connect builds the driver-specific DSN, applies the connection timeouts,
// tunes the pool and pings the server before returning.
//
// # Inspection
//
// GetTableColumns and InspectTable describe a destination table through
// the dialect-agnostic GORM migrator. The status API uses them to report what
// the last sync left behind.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	info, err := database.InspectTable(ctx, db, "yc_jobs")
package database
