package models

import "time"

// User is a POS operator account (cashier, treasurer).
type User struct {
	ID        int        `json:"id" example:"1"`
	Email     string     `json:"email" example:"till@example.org"`
	Name      string     `json:"name" example:"Jo Cashier"`
	Role      string     `json:"role" example:"cashier"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
