package domain

// SubjectType differentiates user vs agent tokens. SYSTEM marks changes
// applied by automation rules rather than a principal.
type SubjectType string

const (
	SubjectTypeUser   SubjectType = "USER"
	SubjectTypeAgent  SubjectType = "AGENT"
	SubjectTypeSystem SubjectType = "SYSTEM"
)
