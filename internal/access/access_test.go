package access

import "testing"

func TestResolveOwnerAlwaysWins(t *testing.T) {
	for _, visibility := range []Visibility{VisibilityPrivate, VisibilityShared, VisibilityPublic} {
		if got := Resolve("usr_a", "usr_a", LevelNone, visibility); got != LevelOwner {
			t.Fatalf("Resolve(owner, %s) = %q, want owner", visibility, got)
		}
	}
	// An explicit grant never demotes the owner.
	if got := Resolve("usr_a", "usr_a", LevelView, VisibilityPrivate); got != LevelOwner {
		t.Fatalf("Resolve(owner with grant) = %q, want owner", got)
	}
}

func TestResolveExplicitGrantOnPrivate(t *testing.T) {
	if got := Resolve("usr_a", "usr_b", LevelView, VisibilityPrivate); got != LevelView {
		t.Fatalf("Resolve(granted, private) = %q, want view", got)
	}
	if got := Resolve("usr_a", "usr_c", LevelNone, VisibilityPrivate); got != LevelNone {
		t.Fatalf("Resolve(stranger, private) = %q, want none", got)
	}
}

func TestResolvePublicFloor(t *testing.T) {
	if got := Resolve("usr_a", "usr_b", LevelNone, VisibilityPublic); got != LevelView {
		t.Fatalf("Resolve(stranger, public) = %q, want view", got)
	}
	// Anonymous callers get the floor too.
	if got := Resolve("usr_a", "", LevelNone, VisibilityPublic); got != LevelView {
		t.Fatalf("Resolve(anonymous, public) = %q, want view", got)
	}
	// A grant above the floor wins over it.
	if got := Resolve("usr_a", "usr_b", LevelComment, VisibilityPublic); got != LevelComment {
		t.Fatalf("Resolve(granted comment, public) = %q, want comment", got)
	}
}

func TestResolveSharedHasNoFloor(t *testing.T) {
	if got := Resolve("usr_a", "usr_b", LevelNone, VisibilityShared); got != LevelNone {
		t.Fatalf("Resolve(stranger, shared) = %q, want none", got)
	}
	if got := Resolve("usr_a", "", LevelNone, VisibilityShared); got != LevelNone {
		t.Fatalf("Resolve(anonymous, shared) = %q, want none", got)
	}
}

func TestResolveAnonymousNeverOwner(t *testing.T) {
	if got := Resolve("", "", LevelNone, VisibilityPrivate); got != LevelNone {
		t.Fatalf("Resolve(anonymous, empty owner) = %q, want none", got)
	}
}

func TestCan(t *testing.T) {
	cases := []struct {
		level  Level
		action Action
		want   bool
	}{
		{LevelOwner, ActionManage, true},
		{LevelAdmin, ActionWrite, true},
		{LevelAdmin, ActionManage, false},
		{LevelContributor, ActionWrite, true},
		{LevelContributor, ActionManage, false},
		{LevelComment, ActionComment, true},
		{LevelComment, ActionWrite, false},
		{LevelView, ActionRead, true},
		{LevelView, ActionComment, false},
		{LevelNone, ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.level, tc.action); got != tc.want {
			t.Errorf("Can(%q, %q) = %v, want %v", tc.level, tc.action, got, tc.want)
		}
	}
}

func TestValidators(t *testing.T) {
	if !ValidVisibility("private") || !ValidVisibility("shared") || !ValidVisibility("public") {
		t.Error("expected canonical visibilities to validate")
	}
	if ValidVisibility("unlisted") || ValidVisibility("") {
		t.Error("expected unknown visibility to be rejected")
	}
	if !ValidSharePermission("view") || !ValidSharePermission("comment") {
		t.Error("expected view/comment to validate")
	}
	if ValidSharePermission("owner") || ValidSharePermission("admin") {
		t.Error("expected non-grant levels to be rejected as share permissions")
	}
	if !ValidCollaboratorRole("viewer") || !ValidCollaboratorRole("contributor") || !ValidCollaboratorRole("admin") {
		t.Error("expected collaborator roles to validate")
	}
	if ValidCollaboratorRole("owner") {
		t.Error("owner is not a collaborator role")
	}
}

func TestRoleLevel(t *testing.T) {
	if RoleLevel("viewer") != LevelView || RoleLevel("contributor") != LevelContributor || RoleLevel("admin") != LevelAdmin {
		t.Error("unexpected role mapping")
	}
	if RoleLevel("bogus") != LevelNone {
		t.Error("unknown role should map to none")
	}
}
