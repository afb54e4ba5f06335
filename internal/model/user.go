package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// swagger:model User
// 用户表由认证服务维护，这里只读取姓名与学号
type User struct {
	BaseModel
	Name        string    `gorm:"size:100;not null" json:"name"`
	Email       string    `gorm:"size:100;unique;not null" json:"email"`
	Password    string    `gorm:"size:100;not null" json:"-"`
	Role        UserRole  `gorm:"size:20;default:'student'" json:"role"`
	StudentCode *string   `gorm:"size:32;uniqueIndex" json:"studentCode,omitempty"` // 人类可读学号，如 STU0042
	LastLogin   time.Time `json:"lastLogin"`
}

func (User) TableName() string {
	return "users"
}

// Sequence 原子序列，用于分配学号等人类可读编号
type Sequence struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null;default:0"`
}

func (Sequence) TableName() string {
	return "sequences"
}
