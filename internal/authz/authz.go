// Package authz is the single capability check consulted by every mutating
// call, decoupling the messaging core from the identity provider's claim
// format.
package authz

import (
	"errors"

	"github.com/edustack/forumchat/internal/types"
)

type Action string

const (
	ActionRead         Action = "read"
	ActionSend         Action = "send"
	ActionIngest       Action = "ingest"
	ActionDelete       Action = "delete"
	ActionCreateForum  Action = "create_forum"
	ActionArchiveForum Action = "archive_forum"
)

var ErrDenied = errors.New("operation not permitted")

// Resource carries the pieces of state a rule may need. Fields irrelevant to
// an action are left zero.
type Resource struct {
	Forum *types.Forum
	// MessageAuthorIds are the distinct authors of the messages targeted by
	// a delete or carried in an ingest batch.
	MessageAuthorIds []int
}

type Authorizer interface {
	Authorize(principal types.User, action Action, res Resource) error
}

// RoleAuthorizer implements the role policy: students read, send and ingest
// their own messages; deletes require faculty, authority or authorship of
// every targeted message; forum creation requires faculty or authority;
// archiving requires the forum's moderator or an authority. Private forums
// are closed to students other than the forum's moderator.
type RoleAuthorizer struct{}

func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

func forumOpenTo(principal types.User, forum *types.Forum) bool {
	if forum == nil || !forum.Private {
		return true
	}
	return principal.Role != types.RoleStudent || forum.ModeratorId == principal.Id
}

func (a *RoleAuthorizer) Authorize(principal types.User, action Action, res Resource) error {
	switch principal.Role {
	case types.RoleStudent, types.RoleFaculty, types.RoleAuthority:
	default:
		return ErrDenied
	}

	switch action {
	case ActionRead, ActionSend:
		if !forumOpenTo(principal, res.Forum) {
			return ErrDenied
		}
		return nil
	case ActionIngest:
		if !forumOpenTo(principal, res.Forum) {
			return ErrDenied
		}
		if principal.Role != types.RoleStudent {
			return nil
		}
		// students may only submit their own messages
		for _, authorId := range res.MessageAuthorIds {
			if authorId != principal.Id {
				return ErrDenied
			}
		}
		return nil
	case ActionDelete:
		if principal.Role == types.RoleFaculty || principal.Role == types.RoleAuthority {
			return nil
		}
		if len(res.MessageAuthorIds) == 0 {
			return ErrDenied
		}
		for _, authorId := range res.MessageAuthorIds {
			if authorId != principal.Id {
				return ErrDenied
			}
		}
		return nil
	case ActionCreateForum:
		if principal.Role == types.RoleFaculty || principal.Role == types.RoleAuthority {
			return nil
		}
		return ErrDenied
	case ActionArchiveForum:
		if principal.Role == types.RoleAuthority {
			return nil
		}
		if res.Forum != nil && res.Forum.ModeratorId == principal.Id {
			return nil
		}
		return ErrDenied
	default:
		return ErrDenied
	}
}
