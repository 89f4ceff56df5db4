package model

// All lists every persisted entity in migration order.
func All() []interface{} {
	return []interface{}{
		&Organization{},
		&Workspace{},
		&Project{},
		&User{},
		&OrganizationMember{},
		&WorkspaceMember{},
		&ProjectMember{},
		&ProjectInbox{},
		&EmailAccount{},
		&InboxRule{},
		&InboxMessage{},
		&MessageAttachment{},
		&MessageRuleResult{},
		&Task{},
		&TaskComment{},
		&TaskAttachment{},
	}
}
