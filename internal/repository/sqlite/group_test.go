package sqlite

import (
	"context"
	"testing"
)

func TestCreateGroup_CreatorIsMember(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@x.com", "Owner")
	m1 := createTestUser(t, db, "m1@x.com", "M1")

	g, err := db.CreateGroup(ctx, "Study buddies", owner.ID, []int64{m1.ID, m1.ID, owner.ID})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if g.ID == 0 {
		t.Error("CreateGroup() did not assign an id")
	}
	if g.MemberCount != 2 {
		t.Errorf("MemberCount = %d, want 2 (duplicates ignored)", g.MemberCount)
	}

	for _, uid := range []int64{owner.ID, m1.ID} {
		groups, err := db.GetGroups(ctx, uid)
		if err != nil {
			t.Fatalf("GetGroups(%d) error = %v", uid, err)
		}
		if len(groups) != 1 || groups[0].Name != "Study buddies" || groups[0].MemberCount != 2 {
			t.Errorf("GetGroups(%d) = %+v", uid, groups)
		}
	}
}

func TestGetGroups_OnlyMemberships(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "a@x.com", "A")
	b := createTestUser(t, db, "b@x.com", "B")

	if _, err := db.CreateGroup(ctx, "Beta", a.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateGroup(ctx, "alpha", a.ID, []int64{b.ID}); err != nil {
		t.Fatal(err)
	}

	groupsA, err := db.GetGroups(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetGroups(a) error = %v", err)
	}
	if len(groupsA) != 2 || groupsA[0].Name != "alpha" || groupsA[1].Name != "Beta" {
		t.Errorf("GetGroups(a) = %+v, want [alpha, Beta]", groupsA)
	}

	groupsB, err := db.GetGroups(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetGroups(b) error = %v", err)
	}
	if len(groupsB) != 1 || groupsB[0].Name != "alpha" {
		t.Errorf("GetGroups(b) = %+v, want [alpha]", groupsB)
	}
}

func TestAddGroupMember_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "a@x.com", "A")
	b := createTestUser(t, db, "b@x.com", "B")

	g, err := db.CreateGroup(ctx, "G", a.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := db.AddGroupMember(ctx, g.ID, b.ID); err != nil {
			t.Fatalf("AddGroupMember() attempt %d: %v", i+1, err)
		}
	}

	groups, err := db.GetGroups(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if groups[0].MemberCount != 2 {
		t.Errorf("MemberCount = %d, want 2", groups[0].MemberCount)
	}
}
