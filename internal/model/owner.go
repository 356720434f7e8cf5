// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Owner is the authenticated end user whose data is being tracked.
//
// WHY THE STRAVA ATHLETE ID AS PRIMARY KEY?
// There is exactly one identity provider. The athlete id is stable, numeric and
// already the join key the upstream API uses (/athletes/{id}/stats), so using
// it directly avoids a second id that would have to be mapped on every call.
type Owner struct {
	ID            int64     `json:"id"            db:"id"`
	Username      string    `json:"username"      db:"username"`
	Firstname     string    `json:"firstname"     db:"firstname"`
	Lastname      string    `json:"lastname"      db:"lastname"`
	ProfileMedium string    `json:"profileMedium" db:"profile_medium"` // 62x62 avatar URL
	Profile       string    `json:"profile"       db:"profile"`        // 124x124 avatar URL
	City          string    `json:"city"          db:"city"`
	Country       string    `json:"country"       db:"country"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// DisplayName returns "Firstname Lastname", falling back to the username.
func (o Owner) DisplayName() string {
	switch {
	case o.Firstname != "" && o.Lastname != "":
		return o.Firstname + " " + o.Lastname
	case o.Firstname != "":
		return o.Firstname
	default:
		return o.Username
	}
}

// Avatar returns the medium profile picture if present, else the large one.
func (o Owner) Avatar() string {
	if o.ProfileMedium != "" {
		return o.ProfileMedium
	}
	return o.Profile
}
