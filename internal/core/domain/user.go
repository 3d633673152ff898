package domain

import "time"

type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	OrderIDs  []string
	CreatedAt time.Time
}
