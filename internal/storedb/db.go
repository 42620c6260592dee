// Package storedb opens the MySQL connection shared by the Cache Index and
// the Block Graph, using database/sql directly over go-sql-driver/mysql:
// no query builder, no ORM layer.
package storedb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/daboe01/VIPSPatchbay/internal/config"
)

// Connect opens and pings a MySQL connection pool sized for a
// multi-worker, multi-request service: many concurrent evaluations may
// each hold at most one connection at a time.
func Connect(cfg config.Database) (*sql.DB, error) {

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&multiStatements=false",
		cfg.Username, cfg.Password, cfg.Addr, cfg.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return db, nil
}

// Schema documents the tables the core reads and writes. It is not
// executed automatically -- migrations are an external concern -- but is
// kept here as the single source of truth for column names used by
// internal/cache and internal/graph's hand-written queries.
const Schema = `
CREATE TABLE IF NOT EXISTS input_images (
	uuid               CHAR(36) PRIMARY KEY,
	original_filename  VARCHAR(255) NOT NULL,
	upload_timestamp   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS blocks_catalogue (
	id                  INT PRIMARY KEY AUTO_INCREMENT,
	name                VARCHAR(128) NOT NULL,
	command             VARCHAR(255) NOT NULL,
	parameter_template  TEXT NOT NULL DEFAULT '',
	parameter_mappings  JSON NOT NULL,
	gui_fields          JSON NOT NULL,
	outputs             VARCHAR(255) NULL
);

CREATE TABLE IF NOT EXISTS blocks (
	id            INT PRIMARY KEY AUTO_INCREMENT,
	idproject     INT NOT NULL,
	idblock       INT NOT NULL,
	connections   JSON NOT NULL,
	output_value  JSON NOT NULL,
	enabled       TINYINT(1) NULL,
	FOREIGN KEY (idblock) REFERENCES blocks_catalogue(id)
);

CREATE TABLE IF NOT EXISTS image_cache (
	uuid               CHAR(36) PRIMARY KEY,
	idblock            INT NOT NULL,
	parameters_json    TEXT NOT NULL,
	input_uuids_json   TEXT NOT NULL,
	creation_timestamp DATETIME NOT NULL,
	INDEX idx_cache_key (idblock, parameters_json(512), input_uuids_json(512)),
	FOREIGN KEY (idblock) REFERENCES blocks(id)
);
`
