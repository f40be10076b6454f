package access

import (
	"context"

	"project-service/internal/model"
)

// The private visibility filter is the single choke point for visibility in
// bulk endpoints: list and search responses intersect their rows against the
// id sets computed here instead of re-running the full per-item check on
// every row. A row is included when its visibility is non-private OR its id
// is in the accessible set.

// AccessiblePrivateProjectIDs returns the complete set of private project
// ids the user may see (ownership, explicit grants, admin override). The
// second return value reports whether filtering is enabled; when false the
// caller must treat every project as workspace-visible.
func (r *Resolver) AccessiblePrivateProjectIDs(ctx context.Context, tenantID, userID uint) ([]uint, bool, error) {
	if !r.features.PrivateProjects {
		return nil, false, nil
	}

	admin, err := r.isTenantAdmin(ctx, tenantID, userID)
	if err != nil {
		return nil, true, err
	}

	var ids []uint
	q := r.db.WithContext(ctx).Model(&model.Project{}).
		Where("tenant_id = ? AND visibility = ?", tenantID, model.VisibilityPrivate)
	if !admin {
		granted := r.db.Model(&model.ProjectAccess{}).
			Select("project_id").
			Where("tenant_id = ? AND user_id = ?", tenantID, userID)
		q = q.Where("created_by = ? OR id IN (?)", userID, granted)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, true, err
	}
	return ids, true, nil
}

// AccessiblePrivateTaskIDs mirrors AccessiblePrivateProjectIDs for tasks.
func (r *Resolver) AccessiblePrivateTaskIDs(ctx context.Context, tenantID, userID uint) ([]uint, bool, error) {
	if !r.features.PrivateTasks {
		return nil, false, nil
	}

	admin, err := r.isTenantAdmin(ctx, tenantID, userID)
	if err != nil {
		return nil, true, err
	}

	var ids []uint
	q := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("tenant_id = ? AND visibility = ?", tenantID, model.VisibilityPrivate)
	if !admin {
		granted := r.db.Model(&model.TaskAccess{}).
			Select("task_id").
			Where("tenant_id = ? AND user_id = ?", tenantID, userID)
		q = q.Where("created_by = ? OR id IN (?)", userID, granted)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, true, err
	}
	return ids, true, nil
}

// FilterVisibleProjects applies the accessible set to candidate rows.
func FilterVisibleProjects(projects []model.Project, accessible []uint, filtered bool) []model.Project {
	if !filtered {
		return projects
	}
	allowed := make(map[uint]struct{}, len(accessible))
	for _, id := range accessible {
		allowed[id] = struct{}{}
	}
	out := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		if p.Visibility != model.VisibilityPrivate {
			out = append(out, p)
			continue
		}
		if _, ok := allowed[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// FilterVisibleTasks applies the accessible set to candidate rows.
func FilterVisibleTasks(tasks []model.Task, accessible []uint, filtered bool) []model.Task {
	if !filtered {
		return tasks
	}
	allowed := make(map[uint]struct{}, len(accessible))
	for _, id := range accessible {
		allowed[id] = struct{}{}
	}
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Visibility != model.VisibilityPrivate {
			out = append(out, t)
			continue
		}
		if _, ok := allowed[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}
