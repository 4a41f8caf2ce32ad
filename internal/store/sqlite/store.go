package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"recal/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Store implements all pipeline persistence over one SQLite file.
type Store struct {
	db *gorm.DB
}

// Open initializes the database, creating the schema when missing.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The pure-Go driver understands the _pragma DSN syntax; the gorm
	// dialect rides on top of it through database/sql.
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.DecisionRecordModel{},
		&model.OutcomeCorrectionModel{},
		&model.RuleVersionModel{},
		&model.ActivePointerModel{},
		&model.LearningRunModel{},
		&model.CalibrationArtifactModel{},
		&model.GateThresholdModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads while a
	// learning run writes.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	return nil
}
