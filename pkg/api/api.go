// Package api defines the request and response messages of Cooper's Connect
// services. Messages are plain structs encoded as JSON; money amounts are
// decimal strings with two places ("12.50") and timestamps are Unix seconds.
package api

// User is a public account record.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	CreatedAt   int64  `json:"createdAt"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type RegisterResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User *User `json:"user"`
}

// Group is a reusable set of users events are created from.
type Group struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Members   []GroupMember `json:"members"`
	CreatedAt int64         `json:"createdAt"`
}

type GroupMember struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	JoinedAt    int64  `json:"joinedAt"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`

	// MemberIDs are added as members; the caller is always added as admin.
	MemberIDs []string `json:"memberIds"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type AddGroupMembersRequest struct {
	GroupID string   `json:"groupId"`
	UserIDs []string `json:"userIds"`
}

type AddGroupMembersResponse struct {
	Group *Group `json:"group"`
}

type ListGroupUsersRequest struct {
	GroupID string `json:"groupId"`
}

type ListGroupUsersResponse struct {
	Users []GroupMember `json:"users"`
}
