package pool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"travel-matching-engine/matching"
)

// AgentRecord is the MySQL row backing one directory agent. List columns are
// comma-separated; the directory splits them on read.
type AgentRecord struct {
	ID                 string `gorm:"primaryKey;size:64"`
	Tier               string `gorm:"size:16;index;not null"`
	Rating             float64
	AvgResponseMinutes int
	Specializations    string `gorm:"size:512"`
	Regions            string `gorm:"size:512"`
	CurrentWorkload    int
	TotalBookings      int
	Available          bool `gorm:"index"`
	UpdatedAt          time.Time
}

func (AgentRecord) TableName() string { return "agents" }

// Agent converts the row to its domain form.
func (r AgentRecord) Agent() matching.Agent {
	return matching.Agent{
		ID:              r.ID,
		Tier:            matching.Tier(strings.ToUpper(strings.TrimSpace(r.Tier))),
		Rating:          r.Rating,
		AvgResponseTime: time.Duration(r.AvgResponseMinutes) * time.Minute,
		Specializations: splitList(r.Specializations),
		Regions:         splitList(r.Regions),
		CurrentWorkload: r.CurrentWorkload,
		TotalBookings:   r.TotalBookings,
		Available:       r.Available,
	}
}

// Directory reads the agent pool from MySQL.
type Directory struct {
	db *gorm.DB
}

// NewDirectory migrates the agents table and returns the directory.
func NewDirectory(db *gorm.DB) (*Directory, error) {
	if err := db.AutoMigrate(&AgentRecord{}); err != nil {
		return nil, fmt.Errorf("migrate agents table: %w", err)
	}
	return &Directory{db: db}, nil
}

// Snapshot loads every available agent. Specialization and region fit stay
// with the scorer, which credits generalists and global agents instead of
// excluding mismatches outright.
func (d *Directory) Snapshot(ctx context.Context, req matching.TravelRequest) ([]matching.Agent, error) {
	var records []AgentRecord
	if err := d.db.WithContext(ctx).Where("available = ?", true).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load agent pool: %w", err)
	}
	agents := make([]matching.Agent, 0, len(records))
	for _, rec := range records {
		agents = append(agents, rec.Agent())
	}
	return agents, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ matching.PoolProvider = (*Directory)(nil)
