package model

import "time"

// CreatedViaEmailIngestion marks users provisioned from inbound mail.
const CreatedViaEmailIngestion = "email_ingestion"

// RoleViewer is the membership role granted to provisioned users.
const RoleViewer = "viewer"

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex"`
	Username     string    `json:"username" gorm:"type:varchar(100);not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"type:varchar(255)"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedVia   string    `json:"created_via" gorm:"type:varchar(50)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Organization struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

type Workspace struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;index"`
	Name           string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

type Project struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	WorkspaceID uint      `json:"workspace_id" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Project) TableName() string {
	return "projects"
}

type OrganizationMember struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_org_member"`
	UserID         uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_org_member"`
	Role           string    `json:"role" gorm:"type:varchar(50)"`
	CreatedAt      time.Time `json:"created_at"`
}

func (OrganizationMember) TableName() string {
	return "organization_members"
}

type WorkspaceMember struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	WorkspaceID uint      `json:"workspace_id" gorm:"not null;uniqueIndex:idx_workspace_member"`
	UserID      uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_workspace_member"`
	Role        string    `json:"role" gorm:"type:varchar(50)"`
	CreatedAt   time.Time `json:"created_at"`
}

func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

type ProjectMember struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_project_member"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_project_member"`
	Role      string    `json:"role" gorm:"type:varchar(50)"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}
