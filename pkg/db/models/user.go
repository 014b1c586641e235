package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the single identity record for every role.
type User struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name         string            `gorm:"column:name;not null"`
	Email        string            `gorm:"column:email;type:text;not null;uniqueIndex:users_email_key"`
	PasswordHash string            `gorm:"column:password_hash;not null"`
	Role         enums.Role        `gorm:"column:role;type:text;not null;index:users_role_idx"`
	Phone        *string           `gorm:"column:phone"`
	Avatar       *string           `gorm:"column:avatar"`
	Addresses    []types.Address   `gorm:"column:addresses;type:jsonb;serializer:json"`
	Profile      types.RoleProfile `gorm:"column:profile;type:jsonb;serializer:json"`
	IsActive     bool              `gorm:"column:is_active;not null"`
	LastLoginAt  *time.Time        `gorm:"column:last_login_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
