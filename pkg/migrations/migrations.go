package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrateStore applies the versioned schema. When migrationFolder is empty the migrations
// bundled with the binary are used.
func MigrateStore(db *gorm.DB, migrationFolder string) error {
	goose.SetLogger(&logger{})

	migrationFS, err := source(migrationFolder)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationFS)

	if err := goose.SetDialect(dialect(db)); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return goose.Up(sqlDB, ".")
}

// Version returns the version of the last applied migration.
func Version(db *gorm.DB) (int64, error) {
	if err := goose.SetDialect(dialect(db)); err != nil {
		return 0, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return 0, err
	}

	return goose.GetDBVersion(sqlDB)
}

func source(migrationFolder string) (fs.FS, error) {
	if migrationFolder == "" {
		return fs.Sub(embedded, "sql")
	}

	fi, err := os.Stat(migrationFolder)
	if err != nil {
		return nil, err
	}

	if !fi.Mode().IsDir() {
		return nil, fmt.Errorf("failed to open migration folder: %s is not a folder", migrationFolder)
	}

	return os.DirFS(migrationFolder), nil
}

func dialect(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("migrations").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("migrations").Fatalf(format, v...) }
