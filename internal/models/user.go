package models

// User represents a row in the users table. Authentication and profile
// management live upstream; this service only reads identity fields and
// bumps the win/loss tallies when a match finishes.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}
