package access

type Visibility string
type Level string
type Action string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

const (
	LevelNone        Level = ""
	LevelView        Level = "view"
	LevelComment     Level = "comment"
	LevelContributor Level = "contributor"
	LevelAdmin       Level = "admin"
	LevelOwner       Level = "owner"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionManage  Action = "manage"
)

// Resolve computes the effective level for a caller. Precedence is strict:
// ownership wins over explicit grants, explicit grants win over the public
// visibility floor. A revoked grant on a public resource therefore falls
// back to view, not to none. requesterID is empty for anonymous callers.
func Resolve(ownerID, requesterID string, grant Level, visibility Visibility) Level {
	if requesterID != "" && requesterID == ownerID {
		return LevelOwner
	}
	if grant != LevelNone {
		return grant
	}
	if visibility == VisibilityPublic {
		return LevelView
	}
	return LevelNone
}

func Can(level Level, action Action) bool {
	switch level {
	case LevelOwner:
		return true
	case LevelAdmin, LevelContributor:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	case LevelComment:
		return action == ActionRead || action == ActionComment
	case LevelView:
		return action == ActionRead
	default:
		return false
	}
}

func ValidVisibility(value string) bool {
	switch Visibility(value) {
	case VisibilityPrivate, VisibilityShared, VisibilityPublic:
		return true
	default:
		return false
	}
}

// ValidSharePermission reports whether value is a session share grant level.
// Sessions only support view and comment grants.
func ValidSharePermission(value string) bool {
	switch Level(value) {
	case LevelView, LevelComment:
		return true
	default:
		return false
	}
}

// ValidCollaboratorRole reports whether value is a project collaborator role.
func ValidCollaboratorRole(value string) bool {
	switch value {
	case "viewer", "contributor", "admin":
		return true
	default:
		return false
	}
}

// RoleLevel maps a project collaborator role to its effective level.
func RoleLevel(role string) Level {
	switch role {
	case "admin":
		return LevelAdmin
	case "contributor":
		return LevelContributor
	case "viewer":
		return LevelView
	default:
		return LevelNone
	}
}
