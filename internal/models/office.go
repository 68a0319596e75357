package models

// AdminLevel is the admin flag of an office membership.
type AdminLevel int

const (
	AdminLevelMember  AdminLevel = 0
	AdminLevelAdmin   AdminLevel = 1
	AdminLevelCoAdmin AdminLevel = 2
)
