package models

import (
	"gorm.io/gorm"
)

type User struct {
	gorm.Model

	Phone     string `gorm:"uniqueIndex;size:32" json:"phone"`
	ContactID uint   `gorm:"index"`
	FullName  string `gorm:"size:128" json:"full_name"`
	PinHash   string `gorm:"size:128" json:"-"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`

	Wallet  *Wallet     `gorm:"foreignKey:UserID"`
	Tickets []BetTicket `gorm:"foreignKey:UserID"`
}
