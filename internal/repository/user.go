package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"task-inbox-go/internal/model"
)

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	ok, err := find(r.conn(ctx).Where("email = ?", email), &user)
	if !ok || err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := first(r.conn(ctx).Where("id = ?", id), &user, ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.conn(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

// CreateUser inserts the user; unique violations are returned unwrapped.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	return r.conn(ctx).Create(user).Error
}

// Hierarchy is the organization and workspace a project belongs to.
type Hierarchy struct {
	OrganizationID uint
	WorkspaceID    uint
	ProjectID      uint
}

func (r *Repository) ProjectHierarchy(ctx context.Context, projectID uint) (Hierarchy, error) {
	var project model.Project
	if err := first(r.conn(ctx).Where("id = ?", projectID), &project, ErrProjectNotFound); err != nil {
		return Hierarchy{}, err
	}
	var ws model.Workspace
	if err := first(r.conn(ctx).Where("id = ?", project.WorkspaceID), &ws, ErrProjectNotFound); err != nil {
		return Hierarchy{}, err
	}
	return Hierarchy{OrganizationID: ws.OrganizationID, WorkspaceID: ws.ID, ProjectID: project.ID}, nil
}

// UpsertMemberships adds the user to the organization, workspace and project
// with the given role. Existing memberships are kept unchanged. Callers wrap
// this in Transaction so the three rows commit together.
func (r *Repository) UpsertMemberships(ctx context.Context, userID uint, h Hierarchy, role string) error {
	conn := r.conn(ctx)
	rows := []interface{}{
		&model.OrganizationMember{OrganizationID: h.OrganizationID, UserID: userID, Role: role},
		&model.WorkspaceMember{WorkspaceID: h.WorkspaceID, UserID: userID, Role: role},
		&model.ProjectMember{ProjectID: h.ProjectID, UserID: userID, Role: role},
	}
	for _, row := range rows {
		if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
			return fmt.Errorf("failed to upsert membership: %w", err)
		}
	}
	return nil
}
