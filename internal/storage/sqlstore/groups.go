package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
)

// CreateGroup persists a new group together with its members.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx,
			"INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)",
			group.ID, group.Name, group.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}

		return s.insertGroupMembers(ctx, tx, group.ID, group.Members, group.CreatedAt)
	})
}

// GetGroup retrieves a group with its members.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.queryRow(ctx, s.db,
		"SELECT id, name, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	members, err := s.ListGroupUsers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.Members = members

	return group, nil
}

// AddGroupMembers adds members to an existing group.
func (s *Store) AddGroupMembers(ctx context.Context, groupID string, members []models.GroupMember) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := s.queryRow(ctx, tx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}

		return s.insertGroupMembers(ctx, tx, groupID, members, time.Now().Unix())
	})
}

func (s *Store) insertGroupMembers(ctx context.Context, tx *sql.Tx, groupID string, members []models.GroupMember, now int64) error {
	for i := range members {
		m := &members[i]
		if m.Role == "" {
			m.Role = models.GroupRoleMember
		}
		if m.JoinedAt == 0 {
			m.JoinedAt = now
		}
		if _, err := s.exec(ctx, tx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (group_id, user_id) DO NOTHING`,
			groupID, m.UserID, m.Role, m.JoinedAt,
		); err != nil {
			return fmt.Errorf("failed to insert group member %s: %w", m.UserID, err)
		}
	}
	return nil
}

// ListGroupUsers returns the members of a group with their user records.
func (s *Store) ListGroupUsers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT gm.user_id, gm.role, gm.joined_at,
		        u.id, u.email, u.display_name, u.password_hash, u.verified_at, u.created_at, u.updated_at
		 FROM group_members gm
		 JOIN users u ON u.id = gm.user_id
		 WHERE gm.group_id = ?
		 ORDER BY gm.joined_at, gm.user_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list group users: %w", err)
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		var verifiedAt sql.NullInt64
		user := &models.User{}
		if err := rows.Scan(&m.UserID, &m.Role, &m.JoinedAt,
			&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &verifiedAt, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		user.VerifiedAt = verifiedAt.Int64
		m.User = user
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	return members, nil
}
