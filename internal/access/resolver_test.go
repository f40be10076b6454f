package access

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"project-service/internal/model"
	"project-service/pkg/config"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	// A shared in-memory sqlite database lives per connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.Tenant{}, &model.Workspace{}, &model.User{},
		&model.Project{}, &model.Task{},
		&model.TaskAccess{}, &model.ProjectAccess{},
		&model.TenantAuditEvent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func allFeatures() config.FeatureConfig {
	return config.FeatureConfig{PrivateProjects: true, PrivateTasks: true}
}

type fixture struct {
	db       *gorm.DB
	resolver *Resolver

	tenantA, tenantB model.Tenant
	creator          model.User // employee in tenant A, creates the resources
	member           model.User // employee in tenant A, no grants
	admin            model.User // admin in tenant A
	outsider         model.User // employee in tenant B

	privateProject   model.Project
	workspaceProject model.Project
	privateTask      model.Task
	workspaceTask    model.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{db: db, resolver: NewResolver(db, allFeatures())}

	f.tenantA = model.Tenant{Name: "alpha", Status: model.TenantStatusActive}
	f.tenantB = model.Tenant{Name: "beta", Status: model.TenantStatusActive}
	mustCreate(t, db, &f.tenantA)
	mustCreate(t, db, &f.tenantB)

	f.creator = model.User{TenantID: &f.tenantA.ID, Email: "creator@alpha.test", Role: model.RoleEmployee, IsActive: true}
	f.member = model.User{TenantID: &f.tenantA.ID, Email: "member@alpha.test", Role: model.RoleEmployee, IsActive: true}
	f.admin = model.User{TenantID: &f.tenantA.ID, Email: "admin@alpha.test", Role: model.RoleAdmin, IsActive: true}
	f.outsider = model.User{TenantID: &f.tenantB.ID, Email: "outsider@beta.test", Role: model.RoleEmployee, IsActive: true}
	mustCreate(t, db, &f.creator)
	mustCreate(t, db, &f.member)
	mustCreate(t, db, &f.admin)
	mustCreate(t, db, &f.outsider)

	f.privateProject = model.Project{TenantID: f.tenantA.ID, Name: "secret", Visibility: model.VisibilityPrivate, Status: "active", CreatedBy: f.creator.ID}
	f.workspaceProject = model.Project{TenantID: f.tenantA.ID, Name: "open", Visibility: model.VisibilityWorkspace, Status: "active", CreatedBy: f.creator.ID}
	mustCreate(t, db, &f.privateProject)
	mustCreate(t, db, &f.workspaceProject)

	f.privateTask = model.Task{TenantID: f.tenantA.ID, ProjectID: f.privateProject.ID, Title: "secret task", Visibility: model.VisibilityPrivate, Status: "open", CreatedBy: f.creator.ID}
	f.workspaceTask = model.Task{TenantID: f.tenantA.ID, ProjectID: f.workspaceProject.ID, Title: "open task", Visibility: model.VisibilityWorkspace, Status: "open", CreatedBy: f.creator.ID}
	mustCreate(t, db, &f.privateTask)
	mustCreate(t, db, &f.workspaceTask)

	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("failed to create %T: %v", v, err)
	}
}

func TestCanViewProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		projectID uint
		userID    uint
		want      bool
	}{
		{"workspace project visible to member", f.workspaceProject.ID, f.member.ID, true},
		{"private project visible to creator", f.privateProject.ID, f.creator.ID, true},
		{"private project hidden from member", f.privateProject.ID, f.member.ID, false},
		{"private project visible to tenant admin", f.privateProject.ID, f.admin.ID, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.resolver.CanViewProject(ctx, f.tenantA.ID, tt.projectID, tt.userID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCanViewProjectWrongTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.CanViewProject(context.Background(), f.tenantB.ID, f.privateProject.ID, f.outsider.ID)
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound for cross-tenant lookup, got %v", err)
	}
}

func TestViewerGrantAllowsViewNotEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.GrantProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.creator.ID, f.member.ID, model.GrantRoleViewer); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	canView, err := f.resolver.CanViewProject(ctx, f.tenantA.ID, f.privateProject.ID, f.member.ID)
	if err != nil || !canView {
		t.Fatalf("viewer grant must allow view: %v %v", canView, err)
	}
	canEdit, err := f.resolver.CanEditProject(ctx, f.tenantA.ID, f.privateProject.ID, f.member.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canEdit {
		t.Fatal("viewer grant must not allow edit")
	}
	canManage, err := f.resolver.CanManageProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.member.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canManage {
		t.Fatal("viewer grant must not allow managing grants")
	}
}

func TestEditorGrantAllowsEditNotManage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.GrantTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.creator.ID, f.member.ID, model.GrantRoleEditor); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	canEdit, err := f.resolver.CanEditTask(ctx, f.tenantA.ID, f.privateTask.ID, f.member.ID)
	if err != nil || !canEdit {
		t.Fatalf("editor grant must allow edit: %v %v", canEdit, err)
	}
	canManage, err := f.resolver.CanManageTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.member.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canManage {
		t.Fatal("editor grant must not allow managing grants")
	}
}

func TestAdminGrantAllowsManage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.GrantTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.creator.ID, f.member.ID, model.GrantRoleAdmin); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	canManage, err := f.resolver.CanManageTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.member.ID)
	if err != nil || !canManage {
		t.Fatalf("admin grant must allow managing grants: %v %v", canManage, err)
	}
}

func TestGrantDuplicateConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.GrantProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.creator.ID, f.member.ID, model.GrantRoleViewer); err != nil {
		t.Fatalf("first grant failed: %v", err)
	}
	_, err := f.resolver.GrantProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.creator.ID, f.member.ID, model.GrantRoleEditor)
	if !errors.Is(err, ErrGrantExists) {
		t.Fatalf("expected ErrGrantExists, got %v", err)
	}

	grants, err := f.resolver.ListProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected exactly one grant row, got %d", len(grants))
	}
}

func TestGrantCrossTenantInvite(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.GrantProjectAccess(context.Background(), f.tenantA.ID, f.privateProject.ID, f.creator.ID, f.outsider.ID, model.GrantRoleViewer)
	if !errors.Is(err, ErrCrossTenantInvite) {
		t.Fatalf("expected ErrCrossTenantInvite, got %v", err)
	}
}

func TestGrantUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.GrantTaskAccess(context.Background(), f.tenantA.ID, f.privateTask.ID, f.creator.ID, 9999, model.GrantRoleViewer)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGrantInvalidRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.GrantTaskAccess(context.Background(), f.tenantA.ID, f.privateTask.ID, f.creator.ID, f.member.ID, "owner")
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUpdateRoleIsFullReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.GrantTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID, f.creator.ID, f.member.ID, model.GrantRoleViewer); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	updated, err := f.resolver.UpdateTaskAccessRole(ctx, f.tenantA.ID, f.privateTask.ID, f.member.ID, model.GrantRoleAdmin)
	if err != nil {
		t.Fatalf("role update failed: %v", err)
	}
	if updated.Role != model.GrantRoleAdmin {
		t.Fatalf("expected role %s, got %s", model.GrantRoleAdmin, updated.Role)
	}

	grants, err := f.resolver.ListTaskAccess(ctx, f.tenantA.ID, f.privateTask.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("role change must not add rows, got %d", len(grants))
	}
	if grants[0].Role != model.GrantRoleAdmin {
		t.Fatalf("stored role not replaced: %s", grants[0].Role)
	}
}

func TestUpdateRoleMissingGrant(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.UpdateTaskAccessRole(context.Background(), f.tenantA.ID, f.privateTask.ID, f.member.ID, model.GrantRoleEditor)
	if !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.GrantProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.creator.ID, f.member.ID, model.GrantRoleEditor); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if err := f.resolver.RevokeProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.member.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	canView, err := f.resolver.CanViewProject(ctx, f.tenantA.ID, f.privateProject.ID, f.member.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canView {
		t.Fatal("revoked user must lose access")
	}

	if err := f.resolver.RevokeProjectAccess(ctx, f.tenantA.ID, f.privateProject.ID, f.member.ID); !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound on second revoke, got %v", err)
	}
}

func TestWorkspaceResourcesEditableByAnyMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	canEdit, err := f.resolver.CanEditTask(ctx, f.tenantA.ID, f.workspaceTask.ID, f.member.ID)
	if err != nil || !canEdit {
		t.Fatalf("workspace task must be editable by tenant member: %v %v", canEdit, err)
	}
	canManage, err := f.resolver.CanManageTaskAccess(ctx, f.tenantA.ID, f.workspaceTask.ID, f.member.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canManage {
		t.Fatal("grant management stays restricted even on workspace tasks")
	}
}
