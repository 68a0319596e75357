package models

import "time"

// UserStatus is the status classification of a user account.
type UserStatus string

const (
	UserStatusPending      UserStatus = "Pending"
	UserStatusActive       UserStatus = "Active"
	UserStatusSuspended    UserStatus = "Suspended"
	UserStatusInactive     UserStatus = "Inactive"
	UserStatusDeleted      UserStatus = "Deleted"
	UserStatusOfficeMember UserStatus = "Office Member"
	UserStatusAdmin        UserStatus = "Admin"
	UserStatusSuperAdmin   UserStatus = "Super Admin"
	UserStatusRejected     UserStatus = "Rejected"
	UserStatusUnverified   UserStatus = "Unverified"
)

var validUserStatuses = map[UserStatus]struct{}{
	UserStatusPending:      {},
	UserStatusActive:       {},
	UserStatusSuspended:    {},
	UserStatusInactive:     {},
	UserStatusDeleted:      {},
	UserStatusOfficeMember: {},
	UserStatusAdmin:        {},
	UserStatusSuperAdmin:   {},
	UserStatusRejected:     {},
	UserStatusUnverified:   {},
}

func IsValidUserStatus(status UserStatus) bool {
	_, ok := validUserStatuses[status]
	return ok
}

// CanSignIn reports whether an account in this status may obtain a token.
func (s UserStatus) CanSignIn() bool {
	switch s {
	case UserStatusSuspended, UserStatusDeleted, UserStatusRejected:
		return false
	default:
		return true
	}
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	OfficerEmail string     `json:"officer_email,omitempty"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u User) IsSuperAdmin() bool {
	return u.Status == UserStatusSuperAdmin
}
