package models

import "time"

// Roles a user can hold. Only job seekers and employers may self-register;
// admins are seeded by the migrator.
const (
	RoleJobSeeker = "job_seeker"
	RoleEmployer  = "employer"
	RoleAdmin     = "admin"
)

// User represents an identity record. The auth core only ever writes the
// row at registration; everything else reads it.
type User struct {
	ID        int64
	Email     string
	PassHash  []byte
	Role      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time

	Profile Profile
}

// Profile holds the role-specific fields captured at registration.
// Seeker fields and employer fields are mutually exclusive in practice
// but stored flat, matching the users table.
type Profile struct {
	FirstName          string
	LastName           string
	Phone              string
	CompanyName        string
	CompanyDescription string
	CompanyWebsite     string
}
