package database

type ForumChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	CreateForum(params CreateForumParams) (Forum, error)
	GetForumById(forumId int) (Forum, error)
	GetForumByExternalId(externalId string) (Forum, error)
	ListForums(params ListForumsParams) ([]Forum, error)
	ArchiveForum(forumId int) error
	ListMessages(forumId int) ([]Message, error)
	KnownDedupKeys(forumId int) (map[DedupKey]int64, error)
	InsertMessages(forumId int, msgs []NewMessage) ([]Message, error)
	DeleteMessages(forumId int, messageIds []int64) ([]int64, error)
	GetMessageAuthors(forumId int, messageIds []int64) ([]int, error)
}
