package domain

import "time"

// Roles a user can hold
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User Model
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                                                                       // Primary key
	Username  string    `gorm:"size:64;unique;not null" json:"username"`                                                    // Unique username
	Password  string    `gorm:"not null" json:"-"`                                                                          // Hashed password
	Role      string    `gorm:"size:16;default:user" json:"role"`                                                           // Role: user or admin
	Account   *Account  `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"account,omitempty"` // One-to-one relationship with Account
	CreatedAt time.Time `json:"created_at"`                                                                                 // Registration time
}
