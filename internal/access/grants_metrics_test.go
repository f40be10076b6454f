package access

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"project-service/internal/model"
	appmetrics "project-service/prometheus"
)

func grantCounter(t *testing.T, resource, operation string) float64 {
	t.Helper()
	return testutil.ToFloat64(appmetrics.GrantOperationCounter.WithLabelValues(resource, operation))
}

// Each grant mutation must bump its counter exactly once, from the resolver.
func TestGrantOperationsCountedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := grantCounter(t, "task", "invite")
	if _, err := f.resolver.GrantTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.creator.ID, f.member.ID, model.GrantRoleViewer); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if got := grantCounter(t, "task", "invite") - before; got != 1 {
		t.Fatalf("expected invite counter delta 1, got %v", got)
	}

	before = grantCounter(t, "task", "role_change")
	if _, err := f.resolver.UpdateTaskAccessRole(ctx, f.tenantA.ID, f.privateTask.ID, f.member.ID, model.GrantRoleEditor); err != nil {
		t.Fatalf("role change failed: %v", err)
	}
	if got := grantCounter(t, "task", "role_change") - before; got != 1 {
		t.Fatalf("expected role_change counter delta 1, got %v", got)
	}

	before = grantCounter(t, "task", "revoke")
	if err := f.resolver.RevokeTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.member.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if got := grantCounter(t, "task", "revoke") - before; got != 1 {
		t.Fatalf("expected revoke counter delta 1, got %v", got)
	}
}

func TestFailedGrantNotCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := grantCounter(t, "project", "invite")
	if _, err := f.resolver.GrantProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.creator.ID, f.outsider.ID, model.GrantRoleViewer); err == nil {
		t.Fatal("cross-tenant invite must fail")
	}
	if got := grantCounter(t, "project", "invite") - before; got != 0 {
		t.Fatalf("failed invite must not be counted, got delta %v", got)
	}
}
