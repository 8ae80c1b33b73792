package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Resource is an Azure resource keyed by its full resource path.
type Resource struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ResourceID    string       `gorm:"type:text;not null;uniqueIndex:ux_resources_resource_id" json:"resource_id"`
	ResourceName  *string      `gorm:"type:text" json:"resource_name,omitempty"`
	ResourceGroup *string      `gorm:"type:text;index" json:"resource_group,omitempty"`
	Location      *string      `gorm:"type:text" json:"location,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Resource) TableName() string { return "resources" }

// NameFromID returns the last non-empty segment of a resource path, or nil
// when the path is empty.
func NameFromID(resourceID string) *string {
	trimmed := strings.TrimRight(strings.TrimSpace(resourceID), "/")
	if trimmed == "" {
		return nil
	}
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]
	return &name
}

// NormalizeGroup trims and lowercases a resource group; empty becomes nil.
func NormalizeGroup(group string) *string {
	normalized := strings.ToLower(strings.TrimSpace(group))
	if normalized == "" {
		return nil
	}
	return &normalized
}
