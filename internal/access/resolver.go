// Package access decides whether an acting user may view, edit or manage a
// specific task or project, and owns the access-grant mutation protocol and
// the private visibility filter used by list endpoints.
package access

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"project-service/internal/model"
	"project-service/pkg/config"
	"project-service/prometheus"
)

// Sentinel errors surfaced to handlers.
var (
	ErrResourceNotFound  = errors.New("resource not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrGrantExists       = errors.New("access grant already exists")
	ErrGrantNotFound     = errors.New("access grant not found")
	ErrCrossTenantInvite = errors.New("invited user does not belong to tenant")
	ErrInvalidRole       = errors.New("invalid grant role")
)

// Resolver answers per-resource access questions against the database.
type Resolver struct {
	db       *gorm.DB
	features config.FeatureConfig
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB, features config.FeatureConfig) *Resolver {
	return &Resolver{db: db, features: features}
}

// isTenantAdmin reports whether the user holds a tenant-wide admin role for
// the tenant: super_user anywhere, or admin within this tenant.
func (r *Resolver) isTenantAdmin(ctx context.Context, tenantID, userID uint) (bool, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if user.Role == model.RoleSuperUser {
		return true, nil
	}
	return user.Role == model.RoleAdmin && user.TenantID != nil && *user.TenantID == tenantID, nil
}

func (r *Resolver) taskInTenant(ctx context.Context, tenantID, taskID uint) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", taskID, tenantID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *Resolver) projectInTenant(ctx context.Context, tenantID, projectID uint) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", projectID, tenantID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (r *Resolver) taskGrant(ctx context.Context, tenantID, taskID, userID uint) (*model.TaskAccess, error) {
	var grant model.TaskAccess
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND task_id = ? AND user_id = ?", tenantID, taskID, userID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *Resolver) projectGrant(ctx context.Context, tenantID, projectID, userID uint) (*model.ProjectAccess, error) {
	var grant model.ProjectAccess
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND project_id = ? AND user_id = ?", tenantID, projectID, userID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// CanViewTask reports whether the user may read the task: the task is
// non-private, or the user is the creator, an explicit grantee of any role,
// or a tenant admin.
func (r *Resolver) CanViewTask(ctx context.Context, tenantID, taskID, userID uint) (bool, error) {
	task, err := r.taskInTenant(ctx, tenantID, taskID)
	if err != nil {
		return false, err
	}
	allowed, err := r.canViewResource(ctx, tenantID, userID, task.Visibility, task.CreatedBy, func() (bool, error) {
		grant, err := r.taskGrant(ctx, tenantID, taskID, userID)
		return grant != nil, err
	})
	if err == nil {
		prometheus.RecordAccessDecision("task", allowed)
	}
	return allowed, err
}

// CanViewProject reports whether the user may read the project.
func (r *Resolver) CanViewProject(ctx context.Context, tenantID, projectID, userID uint) (bool, error) {
	project, err := r.projectInTenant(ctx, tenantID, projectID)
	if err != nil {
		return false, err
	}
	allowed, err := r.canViewResource(ctx, tenantID, userID, project.Visibility, project.CreatedBy, func() (bool, error) {
		grant, err := r.projectGrant(ctx, tenantID, projectID, userID)
		return grant != nil, err
	})
	if err == nil {
		prometheus.RecordAccessDecision("project", allowed)
	}
	return allowed, err
}

func (r *Resolver) canViewResource(ctx context.Context, tenantID, userID uint, visibility string, createdBy uint, hasGrant func() (bool, error)) (bool, error) {
	if visibility != model.VisibilityPrivate {
		return true, nil
	}
	if createdBy == userID {
		return true, nil
	}
	if admin, err := r.isTenantAdmin(ctx, tenantID, userID); err != nil || admin {
		return admin, err
	}
	return hasGrant()
}

// CanEditTask reports whether the user may mutate the task itself. Private
// tasks require creator, an editor/admin grant, or tenant admin; workspace
// tasks are editable by any tenant member.
func (r *Resolver) CanEditTask(ctx context.Context, tenantID, taskID, userID uint) (bool, error) {
	task, err := r.taskInTenant(ctx, tenantID, taskID)
	if err != nil {
		return false, err
	}
	if task.Visibility != model.VisibilityPrivate {
		return true, nil
	}
	if task.CreatedBy == userID {
		return true, nil
	}
	if admin, err := r.isTenantAdmin(ctx, tenantID, userID); err != nil || admin {
		return admin, err
	}
	grant, err := r.taskGrant(ctx, tenantID, taskID, userID)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Role != model.GrantRoleViewer, nil
}

// CanEditProject mirrors CanEditTask for projects.
func (r *Resolver) CanEditProject(ctx context.Context, tenantID, projectID, userID uint) (bool, error) {
	project, err := r.projectInTenant(ctx, tenantID, projectID)
	if err != nil {
		return false, err
	}
	if project.Visibility != model.VisibilityPrivate {
		return true, nil
	}
	if project.CreatedBy == userID {
		return true, nil
	}
	if admin, err := r.isTenantAdmin(ctx, tenantID, userID); err != nil || admin {
		return admin, err
	}
	grant, err := r.projectGrant(ctx, tenantID, projectID, userID)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Role != model.GrantRoleViewer, nil
}

// CanManageTaskAccess reports whether the user may mutate the task's grants:
// only the creator, a holder of an explicit admin grant, or a tenant admin.
func (r *Resolver) CanManageTaskAccess(ctx context.Context, tenantID, taskID, userID uint) (bool, error) {
	task, err := r.taskInTenant(ctx, tenantID, taskID)
	if err != nil {
		return false, err
	}
	if task.CreatedBy == userID {
		return true, nil
	}
	if admin, err := r.isTenantAdmin(ctx, tenantID, userID); err != nil || admin {
		return admin, err
	}
	grant, err := r.taskGrant(ctx, tenantID, taskID, userID)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Role == model.GrantRoleAdmin, nil
}

// CanManageProjectAccess mirrors CanManageTaskAccess for projects.
func (r *Resolver) CanManageProjectAccess(ctx context.Context, tenantID, projectID, userID uint) (bool, error) {
	project, err := r.projectInTenant(ctx, tenantID, projectID)
	if err != nil {
		return false, err
	}
	if project.CreatedBy == userID {
		return true, nil
	}
	if admin, err := r.isTenantAdmin(ctx, tenantID, userID); err != nil || admin {
		return admin, err
	}
	grant, err := r.projectGrant(ctx, tenantID, projectID, userID)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Role == model.GrantRoleAdmin, nil
}
