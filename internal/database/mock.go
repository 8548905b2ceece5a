package database

import (
	"github.com/stretchr/testify/mock"
)

type MockForumChatRepository struct {
	mock.Mock
}

func (m *MockForumChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockForumChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockForumChatRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockForumChatRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockForumChatRepository) CreateForum(params CreateForumParams) (Forum, error) {
	args := m.Called(params)
	return args.Get(0).(Forum), args.Error(1)
}
func (m *MockForumChatRepository) GetForumById(forumId int) (Forum, error) {
	args := m.Called(forumId)
	return args.Get(0).(Forum), args.Error(1)
}
func (m *MockForumChatRepository) GetForumByExternalId(externalId string) (Forum, error) {
	args := m.Called(externalId)
	return args.Get(0).(Forum), args.Error(1)
}
func (m *MockForumChatRepository) ListForums(params ListForumsParams) ([]Forum, error) {
	args := m.Called(params)
	return args.Get(0).([]Forum), args.Error(1)
}
func (m *MockForumChatRepository) ArchiveForum(forumId int) error {
	args := m.Called(forumId)
	return args.Error(0)
}
func (m *MockForumChatRepository) ListMessages(forumId int) ([]Message, error) {
	args := m.Called(forumId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockForumChatRepository) KnownDedupKeys(forumId int) (map[DedupKey]int64, error) {
	args := m.Called(forumId)
	if keys, ok := args.Get(0).(map[DedupKey]int64); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockForumChatRepository) InsertMessages(forumId int, msgs []NewMessage) ([]Message, error) {
	args := m.Called(forumId, msgs)
	if inserted, ok := args.Get(0).([]Message); ok {
		return inserted, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockForumChatRepository) DeleteMessages(forumId int, messageIds []int64) ([]int64, error) {
	args := m.Called(forumId, messageIds)
	if deleted, ok := args.Get(0).([]int64); ok {
		return deleted, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockForumChatRepository) GetMessageAuthors(forumId int, messageIds []int64) ([]int, error) {
	args := m.Called(forumId, messageIds)
	if authors, ok := args.Get(0).([]int); ok {
		return authors, args.Error(1)
	}
	return nil, args.Error(1)
}
