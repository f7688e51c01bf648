package audit

import (
	"context"

	"gorm.io/gorm"
)

// MySQLLogger appends audit entries to the matching_audit_log table.
type MySQLLogger struct {
	db *gorm.DB
}

// NewMySQLLogger migrates the audit table and returns the sink.
func NewMySQLLogger(db *gorm.DB) (*MySQLLogger, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &MySQLLogger{db: db}, nil
}

func (l *MySQLLogger) Record(ctx context.Context, e Entry) error {
	return l.db.WithContext(ctx).Create(&e).Error
}

var _ Logger = (*MySQLLogger)(nil)
