package postgres

import "time"

// AlertRecord is one dispatched alert kept for operator auditing. It is
// written after dispatch and never consulted by the cooldown path.
type AlertRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string `gorm:"type:text;not null;index:idx_alert_symbol"`
	Direction string `gorm:"type:varchar(10);not null"` // "upper" or "lower"

	Price         float64 `gorm:"type:numeric;not null"` // crossing price
	Threshold     float64 `gorm:"type:numeric;not null"` // violated band edge
	ChangePercent float64 `gorm:"type:numeric;not null"` // versus the previous tick

	// Rebased band after the crossing.
	BandMin float64 `gorm:"type:numeric;not null"`
	BandMax float64 `gorm:"type:numeric;not null"`

	Delivered bool `gorm:"not null"` // webhook reported success

	FiredAt    time.Time `gorm:"not null;index:idx_alert_fired_at"`
	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (AlertRecord) TableName() string {
	return "alert_record"
}
