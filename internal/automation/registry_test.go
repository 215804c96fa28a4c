package automation

import (
	"context"
	"errors"
	"testing"
)

func setupRegistry(t *testing.T) (*Registry, *SQLiteRepository) {
	t.Helper()
	repo := NewSQLiteRepository(setupTestDB(t))
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg, repo
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	rule := &Rule{
		Name:    "weekly offline sweep",
		Kind:    KindOfflineDetection,
		Enabled: true,
	}
	if err := reg.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if rule.ID == "" {
		t.Fatal("ID not generated")
	}

	got, err := reg.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Name != "weekly offline sweep" {
		t.Errorf("Name = %q", got.Name)
	}

	// The cache must hand out isolated copies.
	got.Name = "mutated"
	again, err := reg.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if again.Name != "weekly offline sweep" {
		t.Error("cache entry mutated through a returned copy")
	}
}

func TestRegistryCreate_Invalid(t *testing.T) {
	reg, _ := setupRegistry(t)

	err := reg.CreateRule(context.Background(), &Rule{
		Name: "bad kind",
		Kind: Kind("reboot_everything"),
	})
	if !errors.Is(err, ErrInvalidKind) {
		t.Errorf("CreateRule() error = %v, want ErrInvalidKind", err)
	}
}

func TestRegistryRefreshCache(t *testing.T) {
	reg, repo := setupRegistry(t)
	ctx := context.Background()

	seedRule(t, repo, "rule-direct", KindWarrantyAlert, true)

	// Written straight to the repository, so invisible until refresh.
	if _, err := reg.GetRule(ctx, "rule-direct"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule() before refresh error = %v, want ErrRuleNotFound", err)
	}

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if _, err := reg.GetRule(ctx, "rule-direct"); err != nil {
		t.Errorf("GetRule() after refresh error = %v", err)
	}
	if reg.GetRuleCount() != 1 {
		t.Errorf("GetRuleCount() = %d, want 1", reg.GetRuleCount())
	}
}

func TestRegistryUpdateAndDelete(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	rule := &Rule{Name: "aging snapshot", Kind: KindAgingUpdate, Enabled: true}
	if err := reg.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	rule.Enabled = false
	if err := reg.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("UpdateRule() error = %v", err)
	}
	got, err := reg.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Enabled {
		t.Error("Enabled = true after disable")
	}

	if err := reg.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if _, err := reg.GetRule(ctx, rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v, want ErrRuleNotFound", err)
	}
}

func TestRegistryListByKind(t *testing.T) {
	reg, repo := setupRegistry(t)
	ctx := context.Background()

	seedRule(t, repo, "rule-x", KindOfflineDetection, true)
	seedRule(t, repo, "rule-y", KindWarrantyAlert, true)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	offline, err := reg.ListRulesByKind(ctx, KindOfflineDetection)
	if err != nil {
		t.Fatalf("ListRulesByKind() error = %v", err)
	}
	if len(offline) != 1 || offline[0].ID != "rule-x" {
		t.Errorf("ListRulesByKind() = %+v, want [rule-x]", offline)
	}

	all, err := reg.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListRules() returned %d rules, want 2", len(all))
	}
	if all[0].Name > all[1].Name {
		t.Error("ListRules() not sorted by name")
	}
}
