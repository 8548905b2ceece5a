package types

import (
	"time"
)

const (
	RoleStudent   = "student"
	RoleFaculty   = "faculty"
	RoleAuthority = "authority"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Role         string    `json:"role,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Forum struct {
	Id           int       `json:"id"`
	ExternalId   string    `json:"external_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CourseId     int       `json:"course_id,omitempty"`
	DepartmentId int       `json:"department_id,omitempty"`
	SubjectId    int       `json:"subject_id,omitempty"`
	ModeratorId  int       `json:"moderator_id"`
	Private      bool      `json:"private"`
	Archived     bool      `json:"archived"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Attachment struct {
	Name string `json:"name,omitempty"`
	Url  string `json:"url"`
}

// Message is a persisted chat message. Id and CreatedAt are assigned by the
// store at persistence time; ClientRef is the sender's provisional reference
// used for retry dedup and is never trusted as a final identifier.
type Message struct {
	Id          int64        `json:"id"`
	ForumId     int          `json:"forum_id"`
	AuthorId    int          `json:"author_id"`
	ClientRef   string       `json:"client_ref,omitempty"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
