package auth

import (
	"context"
	"testing"
)

func TestScopeRepository_GetOwnedSchoolIDs(t *testing.T) {
	db := testDB(t)
	scopeRepo := NewScopeRepository(db)
	ctx := context.Background()

	owner := seedTestUser(t, db, "headteacher", RoleSchoolOwner)
	seedTestSchools(t, db, owner.ID)

	ids, err := scopeRepo.GetOwnedSchoolIDs(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetOwnedSchoolIDs() error = %v", err)
	}

	if len(ids) != 2 { //nolint:mnd // sch-001 and sch-002 are seeded with this owner
		t.Fatalf("expected 2 owned schools, got %d", len(ids))
	}
	if ids[0] != "sch-001" || ids[1] != "sch-002" {
		t.Errorf("owned schools = %v, want [sch-001 sch-002]", ids)
	}
}

func TestScopeRepository_ResolveSchoolScope_Owner(t *testing.T) {
	db := testDB(t)
	scopeRepo := NewScopeRepository(db)
	ctx := context.Background()

	owner := seedTestUser(t, db, "headteacher", RoleSchoolOwner)
	seedTestSchools(t, db, owner.ID)

	scope, err := scopeRepo.ResolveSchoolScope(ctx, owner)
	if err != nil {
		t.Fatalf("ResolveSchoolScope() error = %v", err)
	}

	if scope == nil {
		t.Fatal("school owner scope should not be nil")
	}

	if !scope.CanAccessSchool("sch-001") {
		t.Error("owner should access their own school")
	}
	if scope.CanAccessSchool("sch-003") {
		t.Error("owner should not access an unowned school")
	}
}
