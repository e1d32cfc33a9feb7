package team

import "testing"

func TestDiffMembers(t *testing.T) {
	current := []Member{
		{UserID: "u1", RoleID: "engineer"},
		{UserID: "u2", RoleID: "architect"},
		{UserID: "u3", RoleID: "viewer"},
	}
	next := []Member{
		{UserID: "u1", RoleID: "engineer"},
		{UserID: "u2", RoleID: "reviewer"},
		{UserID: "u4", RoleID: "viewer"},
	}

	added, removed, rerolled := DiffMembers(current, next)

	if len(added) != 1 || added[0].UserID != "u4" {
		t.Fatalf("added = %+v, want only u4", added)
	}
	if len(removed) != 1 || removed[0] != "u3" {
		t.Fatalf("removed = %+v, want only u3", removed)
	}
	if len(rerolled) != 1 || rerolled[0].UserID != "u2" || rerolled[0].RoleID != "reviewer" {
		t.Fatalf("rerolled = %+v, want u2 -> reviewer", rerolled)
	}
}

func TestDiffMembersIdentityIsNoop(t *testing.T) {
	members := []Member{
		{UserID: "u1", RoleID: "engineer"},
		{UserID: "u2", RoleID: "architect"},
	}
	added, removed, rerolled := DiffMembers(members, members)
	if len(added)+len(removed)+len(rerolled) != 0 {
		t.Fatalf("identical lists must diff to nothing: +%v -%v ~%v", added, removed, rerolled)
	}
}

func TestDiffMembersEmptySides(t *testing.T) {
	members := []Member{{UserID: "u1", RoleID: "engineer"}}

	added, removed, _ := DiffMembers(nil, members)
	if len(added) != 1 || len(removed) != 0 {
		t.Fatalf("diff from empty: added=%v removed=%v", added, removed)
	}

	added, removed, _ = DiffMembers(members, nil)
	if len(added) != 0 || len(removed) != 1 {
		t.Fatalf("diff to empty: added=%v removed=%v", added, removed)
	}
}
