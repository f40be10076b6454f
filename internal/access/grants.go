package access

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"project-service/internal/model"
	"project-service/prometheus"
)

// Grant mutation protocol, applied identically to tasks and projects:
//  1. the invited user must belong to the same tenant as the resource,
//  2. duplicate grants are a conflict (one row per resource/user pair),
//  3. role changes are full replacements, never increments,
//  4. revocation removes the row and reports not-found when absent.
// The unique index on (resource, user) closes the check-then-insert race;
// the existence check here is only an early exit.

// targetUserInTenant validates the invited user against the resource tenant.
func (r *Resolver) targetUserInTenant(ctx context.Context, tenantID, userID uint) error {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.TenantID == nil || *user.TenantID != tenantID {
		return ErrCrossTenantInvite
	}
	return nil
}

// ListTaskAccess returns every grant on the task.
func (r *Resolver) ListTaskAccess(ctx context.Context, tenantID, taskID uint) ([]model.TaskAccess, error) {
	if _, err := r.taskInTenant(ctx, tenantID, taskID); err != nil {
		return nil, err
	}
	var grants []model.TaskAccess
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND task_id = ?", tenantID, taskID).
		Order("id ASC").
		Find(&grants).Error
	return grants, err
}

// GrantTaskAccess invites a user onto a task with a role.
func (r *Resolver) GrantTaskAccess(ctx context.Context, tenantID, taskID, actorUserID, targetUserID uint, role string) (*model.TaskAccess, error) {
	if !model.ValidGrantRole(role) {
		return nil, ErrInvalidRole
	}
	if _, err := r.taskInTenant(ctx, tenantID, taskID); err != nil {
		return nil, err
	}
	if err := r.targetUserInTenant(ctx, tenantID, targetUserID); err != nil {
		return nil, err
	}

	existing, err := r.taskGrant(ctx, tenantID, taskID, targetUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrGrantExists
	}

	grant := &model.TaskAccess{
		TenantID:        tenantID,
		TaskID:          taskID,
		UserID:          targetUserID,
		Role:            role,
		InvitedByUserID: actorUserID,
	}
	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrGrantExists
		}
		return nil, err
	}
	prometheus.RecordGrantOperation("task", "invite")
	return grant, nil
}

// UpdateTaskAccessRole replaces the role on an existing grant.
func (r *Resolver) UpdateTaskAccessRole(ctx context.Context, tenantID, taskID, targetUserID uint, role string) (*model.TaskAccess, error) {
	if !model.ValidGrantRole(role) {
		return nil, ErrInvalidRole
	}
	grant, err := r.taskGrant(ctx, tenantID, taskID, targetUserID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, ErrGrantNotFound
	}

	grant.Role = role
	if err := r.db.WithContext(ctx).Model(grant).Update("role", role).Error; err != nil {
		return nil, err
	}
	prometheus.RecordGrantOperation("task", "role_change")
	return grant, nil
}

// RevokeTaskAccess removes a grant entirely.
func (r *Resolver) RevokeTaskAccess(ctx context.Context, tenantID, taskID, targetUserID uint) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND task_id = ? AND user_id = ?", tenantID, taskID, targetUserID).
		Delete(&model.TaskAccess{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGrantNotFound
	}
	prometheus.RecordGrantOperation("task", "revoke")
	return nil
}

// ListProjectAccess returns every grant on the project.
func (r *Resolver) ListProjectAccess(ctx context.Context, tenantID, projectID uint) ([]model.ProjectAccess, error) {
	if _, err := r.projectInTenant(ctx, tenantID, projectID); err != nil {
		return nil, err
	}
	var grants []model.ProjectAccess
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND project_id = ?", tenantID, projectID).
		Order("id ASC").
		Find(&grants).Error
	return grants, err
}

// GrantProjectAccess invites a user onto a project with a role.
func (r *Resolver) GrantProjectAccess(ctx context.Context, tenantID, projectID, actorUserID, targetUserID uint, role string) (*model.ProjectAccess, error) {
	if !model.ValidGrantRole(role) {
		return nil, ErrInvalidRole
	}
	if _, err := r.projectInTenant(ctx, tenantID, projectID); err != nil {
		return nil, err
	}
	if err := r.targetUserInTenant(ctx, tenantID, targetUserID); err != nil {
		return nil, err
	}

	existing, err := r.projectGrant(ctx, tenantID, projectID, targetUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrGrantExists
	}

	grant := &model.ProjectAccess{
		TenantID:        tenantID,
		ProjectID:       projectID,
		UserID:          targetUserID,
		Role:            role,
		InvitedByUserID: actorUserID,
	}
	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrGrantExists
		}
		return nil, err
	}
	prometheus.RecordGrantOperation("project", "invite")
	return grant, nil
}

// UpdateProjectAccessRole replaces the role on an existing grant.
func (r *Resolver) UpdateProjectAccessRole(ctx context.Context, tenantID, projectID, targetUserID uint, role string) (*model.ProjectAccess, error) {
	if !model.ValidGrantRole(role) {
		return nil, ErrInvalidRole
	}
	grant, err := r.projectGrant(ctx, tenantID, projectID, targetUserID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, ErrGrantNotFound
	}

	grant.Role = role
	if err := r.db.WithContext(ctx).Model(grant).Update("role", role).Error; err != nil {
		return nil, err
	}
	prometheus.RecordGrantOperation("project", "role_change")
	return grant, nil
}

// RevokeProjectAccess removes a grant entirely.
func (r *Resolver) RevokeProjectAccess(ctx context.Context, tenantID, projectID, targetUserID uint) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND project_id = ? AND user_id = ?", tenantID, projectID, targetUserID).
		Delete(&model.ProjectAccess{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGrantNotFound
	}
	prometheus.RecordGrantOperation("project", "revoke")
	return nil
}
