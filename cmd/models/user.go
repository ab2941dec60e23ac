package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleMentor   = "mentor"
	RoleCustomer = "customer"

	TierFree    = "free"
	TierPremium = "premium"
)

type User struct {
	gorm.Model
	FirstName    string `gorm:"column:first_name;size:30;not null" json:"first_name"`
	LastName     string `gorm:"column:last_name;size:30;not null" json:"last_name"`
	Email        string `gorm:"column:email;size:120;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role         string `gorm:"column:role;size:50;not null" json:"role"`
	Phone        string `gorm:"column:phone;size:30" json:"phone"`
	Tier         string `gorm:"column:subscription_tier;size:50;not null;default:free" json:"subscription_tier"`
	AboutMe      string `gorm:"column:about_me;type:text" json:"about_me"`
	IsActive     bool   `gorm:"column:is_active;default:true" json:"is_active"`

	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`
	LastActive            time.Time `gorm:"column:last_active" json:"last_active"`
}

func (u *User) IsMentor() bool {
	return u.Role == RoleMentor
}

func (u *User) IsPremium() bool {
	return u.Tier == TierPremium
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
