package authz

import (
	"github.com/edustack/forumchat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(principal types.User, action Action, res Resource) error {
	args := m.Called(principal, action, res)
	return args.Error(0)
}
