package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/jinzhu/gorm/dialects/sqlite"   // SQLite driver
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to databaseURL and brings the schema up to date.
//
// postgres:// and postgresql:// URLs run the embedded goose migrations;
// sqlite://<path> URLs (including sqlite://:memory:) use gorm's AutoMigrate.
func Open(databaseURL string, logger *zap.SugaredLogger) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		conn, err := gorm.Open("postgres", databaseURL)
		if err != nil {
			return nil, err
		}
		conn.SetLogger(gormLogger{logger})
		if err := migratePostgres(conn, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		return conn, nil

	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		conn, err := gorm.Open("sqlite3", path)
		if err != nil {
			return nil, err
		}
		conn.SetLogger(gormLogger{logger})
		if path == ":memory:" {
			// Every connection to :memory: is a separate database.
			conn.DB().SetMaxOpenConns(1)
		}
		if err := AutoMigrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		return conn, nil
	}

	return nil, fmt.Errorf("unsupported database url scheme: %q", schemeOf(databaseURL))
}

// AutoMigrate creates the tables and indexes from the row models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&accountRow{}, &linkRow{}, &clickRow{}).Error
}

func migratePostgres(conn *gorm.DB, logger *zap.SugaredLogger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(conn.DB(), "migrations")
}

func schemeOf(databaseURL string) string {
	if i := strings.Index(databaseURL, "://"); i >= 0 {
		return databaseURL[:i]
	}
	return databaseURL
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// gorm.Errors joins several errors without exposing them to errors.As.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// gormLogger routes gorm's SQL and error logs to zap at debug level.
type gormLogger struct {
	logger *zap.SugaredLogger
}

func (l gormLogger) Print(v ...interface{}) {
	l.logger.Debug(gorm.LogFormatter(v...)...)
}

type gooseLogger struct {
	logger *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}
