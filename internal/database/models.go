package database

import "time"

type Account struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Forum struct {
	Id           int
	ExternalId   string
	Name         string
	Description  string
	CourseId     int
	DepartmentId int
	SubjectId    int
	ModeratorId  int
	Private      bool
	Archived     bool
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id          int64
	ForumId     int
	AuthorId    int
	ClientRef   string
	Body        string
	Attachments string // JSON-encoded attachment list, empty when none
	CreatedAt   time.Time
}

// DedupKey identifies a client submission independently of the client's
// provisional message id, so colliding ids from two clients never shadow
// each other.
type DedupKey struct {
	AuthorId  int
	ClientRef string
}

// NewMessage is a candidate row on the ingest path. The store assigns the
// final id and creation timestamp.
type NewMessage struct {
	AuthorId    int
	ClientRef   string
	Body        string
	Attachments string
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	Role         string
}

type CreateForumParams struct {
	Name         string
	Description  string
	ExternalId   string
	CourseId     int
	DepartmentId int
	SubjectId    int
	ModeratorId  int
	Private      bool
	Tags         []string
}

type ListForumsParams struct {
	CourseId     int
	DepartmentId int
	SubjectId    int
}
