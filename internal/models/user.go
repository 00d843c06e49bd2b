package models

import "time"

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Role        string    `json:"role"`
	StationCode string    `json:"stationCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Profile is the subset of account data every connected client may see.
// It is what the roster broadcast attaches to each presence entry.
type Profile struct {
	UserID      int64  `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Role        string `json:"role"`
	StationCode string `json:"stationCode,omitempty"`
}

func (u *User) Profile() Profile {
	return Profile{
		UserID:      u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		StationCode: u.StationCode,
	}
}
