package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Customer struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Email       string       `gorm:"type:text;not null;index" json:"email"`
	CompanyName string       `gorm:"type:text" json:"company_name,omitempty"`
	Address     string       `gorm:"type:text" json:"address,omitempty"`
	TaxID       string       `gorm:"type:text" json:"tax_id,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
