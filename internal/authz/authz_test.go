package authz

import (
	"testing"

	"github.com/edustack/forumchat/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestRoleAuthorizer(t *testing.T) {
	var (
		student   = types.User{Id: 1, Role: types.RoleStudent}
		faculty   = types.User{Id: 2, Role: types.RoleFaculty}
		authority = types.User{Id: 3, Role: types.RoleAuthority}
		moderator = types.User{Id: 4, Role: types.RoleStudent}
		noRole    = types.User{Id: 5}
	)

	forum := &types.Forum{Id: 42, ModeratorId: moderator.Id}
	privateForum := &types.Forum{Id: 43, ModeratorId: moderator.Id, Private: true}

	tcases := []struct {
		name      string
		principal types.User
		action    Action
		res       Resource
		denied    bool
	}{
		{
			name:      "student may send",
			principal: student,
			action:    ActionSend,
			res:       Resource{Forum: forum},
		},
		{
			name:      "student may ingest own messages",
			principal: student,
			action:    ActionIngest,
			res:       Resource{Forum: forum, MessageAuthorIds: []int{student.Id}},
		},
		{
			name:      "student may not ingest others' messages",
			principal: student,
			action:    ActionIngest,
			res:       Resource{Forum: forum, MessageAuthorIds: []int{faculty.Id}},
			denied:    true,
		},
		{
			name:      "faculty may ingest on behalf of others",
			principal: faculty,
			action:    ActionIngest,
			res:       Resource{Forum: forum, MessageAuthorIds: []int{student.Id}},
		},
		{
			name:      "student may read",
			principal: student,
			action:    ActionRead,
			res:       Resource{Forum: forum},
		},
		{
			name:      "unknown role denied",
			principal: noRole,
			action:    ActionRead,
			denied:    true,
		},
		{
			name:      "student may delete own messages",
			principal: student,
			action:    ActionDelete,
			res:       Resource{Forum: forum, MessageAuthorIds: []int{student.Id}},
		},
		{
			name:      "student may not delete others' messages",
			principal: student,
			action:    ActionDelete,
			res:       Resource{Forum: forum, MessageAuthorIds: []int{student.Id, faculty.Id}},
			denied:    true,
		},
		{
			name:      "faculty may delete any messages",
			principal: faculty,
			action:    ActionDelete,
			res:       Resource{Forum: forum, MessageAuthorIds: []int{student.Id}},
		},
		{
			name:      "student may not create forums",
			principal: student,
			action:    ActionCreateForum,
			denied:    true,
		},
		{
			name:      "faculty may create forums",
			principal: faculty,
			action:    ActionCreateForum,
		},
		{
			name:      "authority may archive any forum",
			principal: authority,
			action:    ActionArchiveForum,
			res:       Resource{Forum: forum},
		},
		{
			name:      "moderator may archive own forum",
			principal: moderator,
			action:    ActionArchiveForum,
			res:       Resource{Forum: forum},
		},
		{
			name:      "non-moderating student may not archive",
			principal: student,
			action:    ActionArchiveForum,
			res:       Resource{Forum: forum},
			denied:    true,
		},
		{
			name:      "student may not read a private forum",
			principal: student,
			action:    ActionRead,
			res:       Resource{Forum: privateForum},
			denied:    true,
		},
		{
			name:      "student may not send into a private forum",
			principal: student,
			action:    ActionSend,
			res:       Resource{Forum: privateForum},
			denied:    true,
		},
		{
			name:      "student may not ingest into a private forum",
			principal: student,
			action:    ActionIngest,
			res:       Resource{Forum: privateForum, MessageAuthorIds: []int{student.Id}},
			denied:    true,
		},
		{
			name:      "moderator may read their private forum",
			principal: moderator,
			action:    ActionRead,
			res:       Resource{Forum: privateForum},
		},
		{
			name:      "faculty may send into a private forum",
			principal: faculty,
			action:    ActionSend,
			res:       Resource{Forum: privateForum},
		},
		{
			name:      "unknown action denied",
			principal: authority,
			action:    Action("promote"),
			denied:    true,
		},
	}

	a := NewRoleAuthorizer()
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.Authorize(tc.principal, tc.action, tc.res)
			if tc.denied {
				assert.ErrorIs(t, err, ErrDenied, "expected %q to be denied", tc.name)
			} else {
				assert.NoError(t, err, "expected %q to be allowed", tc.name)
			}
		})
	}
}
