package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// GroupService implements the Connect GroupService.
type GroupService struct {
	store storage.Store
}

var _ apiconnect.GroupServiceHandler = (*GroupService)(nil)

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{store: store}
}

// CreateGroup creates a group. The caller becomes its admin.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroup request received", "name", req.Msg.Name, "members_count", len(req.Msg.MemberIDs))

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument("group name is required")
	}

	memberIDs := dedupe(append([]string{userID}, req.Msg.MemberIDs...))
	if err := s.requireUsers(ctx, memberIDs); err != nil {
		return nil, err
	}

	group := &models.Group{Name: name}
	for _, id := range memberIDs {
		role := models.GroupRoleMember
		if id == userID {
			role = models.GroupRoleAdmin
		}
		group.Members = append(group.Members, models.GroupMember{UserID: id, Role: role})
	}

	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fail("CreateGroup", err)
	}

	created, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, fail("CreateGroup", err, "group_id", group.ID)
	}

	slog.Info("Group created", "group_id", group.ID)
	return connect.NewResponse(&api.CreateGroupResponse{Group: toAPIGroup(created)}), nil
}

// GetGroup retrieves a group the caller belongs to.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	slog.Info("GetGroup request received", "group_id", req.Msg.GroupID)

	group, err := s.memberGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.GetGroupResponse{Group: toAPIGroup(group)}), nil
}

// AddGroupMembers adds users to a group the caller belongs to. Existing members are skipped.
func (s *GroupService) AddGroupMembers(ctx context.Context, req *connect.Request[api.AddGroupMembersRequest]) (*connect.Response[api.AddGroupMembersResponse], error) {
	slog.Info("AddGroupMembers request received", "group_id", req.Msg.GroupID, "count", len(req.Msg.UserIDs))

	if len(req.Msg.UserIDs) == 0 {
		return nil, invalidArgument("at least one user is required")
	}
	if _, err := s.memberGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}

	ids := dedupe(req.Msg.UserIDs)
	if err := s.requireUsers(ctx, ids); err != nil {
		return nil, err
	}

	members := make([]models.GroupMember, len(ids))
	for i, id := range ids {
		members[i] = models.GroupMember{UserID: id, Role: models.GroupRoleMember}
	}
	if err := s.store.AddGroupMembers(ctx, req.Msg.GroupID, members); err != nil {
		return nil, fail("AddGroupMembers", err, "group_id", req.Msg.GroupID)
	}

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("AddGroupMembers", err, "group_id", req.Msg.GroupID)
	}

	slog.Info("Group members added", "group_id", group.ID, "members_count", len(group.Members))
	return connect.NewResponse(&api.AddGroupMembersResponse{Group: toAPIGroup(group)}), nil
}

// ListGroupUsers lists the members of a group with their account details.
func (s *GroupService) ListGroupUsers(ctx context.Context, req *connect.Request[api.ListGroupUsersRequest]) (*connect.Response[api.ListGroupUsersResponse], error) {
	slog.Info("ListGroupUsers request received", "group_id", req.Msg.GroupID)

	if _, err := s.memberGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}

	members, err := s.store.ListGroupUsers(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, fail("ListGroupUsers", err, "group_id", req.Msg.GroupID)
	}

	return connect.NewResponse(&api.ListGroupUsersResponse{Users: toAPIGroupMembers(members)}), nil
}

// memberGroup loads the group and checks the caller belongs to it.
func (s *GroupService) memberGroup(ctx context.Context, groupID string) (*models.Group, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, invalidArgument("group_id is required")
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fail("GetGroup", err, "group_id", groupID)
	}
	for _, m := range group.Members {
		if m.UserID == userID {
			return group, nil
		}
	}
	return nil, connect.NewError(connect.CodePermissionDenied, errNotGroupMember)
}

// requireUsers fails with NotFound naming the first unknown user.
func (s *GroupService) requireUsers(ctx context.Context, ids []string) error {
	return requireUsers(ctx, s.store, ids)
}

func requireUsers(ctx context.Context, users storage.UserStore, ids []string) error {
	found, err := users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return fail("GetUsersByIDs", err)
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return connect.NewError(connect.CodeNotFound, fmt.Errorf("user %s: %w", id, storage.ErrNotFound))
		}
	}
	return nil
}

// dedupe drops empty and repeated IDs, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
