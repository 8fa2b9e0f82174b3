package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const mysqlErrDuplicateEntry = 1062

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
			email VARCHAR(255) PRIMARY KEY,
			id VARCHAR(36) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(36) NOT NULL UNIQUE,
			user_email VARCHAR(255) NOT NULL,
			text TEXT NOT NULL,
			transformed TEXT NOT NULL,
			steps MEDIUMTEXT NOT NULL,
			prediction INT NOT NULL,
			label VARCHAR(16) NOT NULL,
			probabilities VARCHAR(255) NOT NULL,
			model VARCHAR(64) NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_predictions_user_created (user_email, created_at),
			INDEX idx_predictions_created (created_at)
		) CHARACTER SET utf8mb4`,
	},
	isDuplicate: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
	},
}

// NewMySQLStore connects to MySQL using dsn
func NewMySQLStore(dsn string, logger *zap.Logger, opts Options) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	return newSQLStore(db, mysqlDialect, logger, opts)
}
