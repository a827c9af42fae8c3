package postgres

import (
	"context"
	"time"
)

func (p *PostgresClient) InsertAlert(ctx context.Context, record *AlertRecord) error {
	return p.DB.WithContext(ctx).Create(record).Error
}

// RecentAlerts returns the newest alerts for a symbol, or across all
// symbols when symbol is empty.
func (p *PostgresClient) RecentAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error) {
	q := p.DB.WithContext(ctx).Order("fired_at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var alerts []AlertRecord
	if err := q.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// DeleteOldAlerts prunes audit rows older than the retention window.
func (p *PostgresClient) DeleteOldAlerts(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("fired_at < ?", before).
		Delete(&AlertRecord{}).Error
}
