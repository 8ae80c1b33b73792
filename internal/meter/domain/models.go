package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Meter defines an Azure billing meter.
type Meter struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	MeterID       string       `json:"meter_id" gorm:"type:text;not null;uniqueIndex:ux_meters_meter_id"`
	Name          string       `json:"name" gorm:"type:text;not null;default:''"`
	Category      string       `json:"category" gorm:"type:text;not null;default:''"`
	Subcategory   *string      `json:"subcategory,omitempty" gorm:"type:text"`
	ServiceFamily *string      `json:"service_family,omitempty" gorm:"type:text"`
	Unit          string       `json:"unit" gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Meter) TableName() string { return "meters" }
