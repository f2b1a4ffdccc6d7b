// Package access checks permissions of players
package access

import (
	"github.com/google/uuid"
)

// Permission is a capability tag
type Permission string

// ManageBoards allows to create, configure and remove boards
const ManageBoards Permission = "manage-boards"

// Static grants permissions to a fixed set of players
type Static struct {
	grants map[uuid.UUID]map[Permission]bool
}

// NewStatic makes Static with no grants
func NewStatic() *Static {
	return &Static{grants: map[uuid.UUID]map[Permission]bool{}}
}

// Grant adds permissions to the player. Not thread safe, intended for setup
func (s *Static) Grant(player uuid.UUID, perms ...Permission) *Static {
	if s.grants[player] == nil {
		s.grants[player] = map[Permission]bool{}
	}
	for _, p := range perms {
		s.grants[player][p] = true
	}
	return s
}

// Can checks if the player has the permission
func (s *Static) Can(player uuid.UUID, perm Permission) bool {
	return s.grants[player][perm]
}

// Capabilities returns all permissions of the player
func (s *Static) Capabilities(player uuid.UUID) []Permission {
	res := []Permission{}
	for p, ok := range s.grants[player] {
		if ok {
			res = append(res, p)
		}
	}
	return res
}
