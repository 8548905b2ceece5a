package database

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

func (db *PgForumChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, role, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.Role,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgForumChatRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, role, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgForumChatRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, role, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

const forumColumns = "id, external_id, name, description, course_id, department_id, subject_id, " +
	"moderator_id, private, archived, tags, created_at, updated_at"

func scanForum(row interface{ Scan(dest ...any) error }) (Forum, error) {
	var f Forum
	err := row.Scan(
		&f.Id,
		&f.ExternalId,
		&f.Name,
		&f.Description,
		&f.CourseId,
		&f.DepartmentId,
		&f.SubjectId,
		&f.ModeratorId,
		&f.Private,
		&f.Archived,
		pq.Array(&f.Tags),
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	return f, err
}

func (db *PgForumChatRepository) CreateForum(params CreateForumParams) (Forum, error) {
	res := db.conn.QueryRow(
		"INSERT INTO forums (external_id, name, description, course_id, department_id, subject_id, moderator_id, private, tags, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING "+forumColumns,
		params.ExternalId,
		params.Name,
		params.Description,
		params.CourseId,
		params.DepartmentId,
		params.SubjectId,
		params.ModeratorId,
		params.Private,
		pq.Array(params.Tags),
		time.Now().UTC(),
	)

	return scanForum(res)
}

func (db *PgForumChatRepository) GetForumById(forumId int) (Forum, error) {
	row := db.conn.QueryRow(
		"SELECT "+forumColumns+" FROM forums WHERE id = $1 LIMIT 1",
		forumId,
	)

	return scanForum(row)
}

func (db *PgForumChatRepository) GetForumByExternalId(externalId string) (Forum, error) {
	row := db.conn.QueryRow(
		"SELECT "+forumColumns+" FROM forums WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	return scanForum(row)
}

func (db *PgForumChatRepository) ListForums(params ListForumsParams) ([]Forum, error) {
	rows, err := db.conn.Query(
		"SELECT "+forumColumns+" FROM forums "+
			"WHERE NOT archived "+
			"AND ($1 = 0 OR course_id = $1) "+
			"AND ($2 = 0 OR department_id = $2) "+
			"AND ($3 = 0 OR subject_id = $3) "+
			"ORDER BY created_at, id",
		params.CourseId,
		params.DepartmentId,
		params.SubjectId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forums = make([]Forum, 0)
	for rows.Next() {
		f, err := scanForum(rows)
		if err != nil {
			return nil, err
		}
		forums = append(forums, f)
	}

	return forums, rows.Err()
}

func (db *PgForumChatRepository) ArchiveForum(forumId int) error {
	res, err := db.conn.Exec(
		"UPDATE forums SET archived = TRUE, updated_at = $2 WHERE id = $1",
		forumId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("forum with id %d not found", forumId)
	}

	return nil
}

func (db *PgForumChatRepository) ListMessages(forumId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, forum_id, author_id, client_ref, body, attachments, created_at FROM messages "+
			"WHERE forum_id = $1 ORDER BY created_at, id",
		forumId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.ForumId, &msg.AuthorId, &msg.ClientRef, &msg.Body, &msg.Attachments, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgForumChatRepository) KnownDedupKeys(forumId int) (map[DedupKey]int64, error) {
	rows, err := db.conn.Query(
		"SELECT id, author_id, client_ref FROM messages WHERE forum_id = $1 AND client_ref <> ''",
		forumId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[DedupKey]int64)
	for rows.Next() {
		var (
			id        int64
			authorId  int
			clientRef string
		)
		if err := rows.Scan(&id, &authorId, &clientRef); err != nil {
			return nil, err
		}

		keys[DedupKey{AuthorId: authorId, ClientRef: clientRef}] = id
	}

	return keys, rows.Err()
}

// InsertMessages appends the candidate rows in a single transaction so a
// failed batch leaves no partial state behind.
func (db *PgForumChatRepository) InsertMessages(forumId int, msgs []NewMessage) ([]Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var inserted = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		res := tx.QueryRow(
			"INSERT INTO messages (forum_id, author_id, client_ref, body, attachments, created_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, forum_id, author_id, client_ref, body, attachments, created_at",
			forumId,
			m.AuthorId,
			m.ClientRef,
			m.Body,
			m.Attachments,
			time.Now().UTC(),
		)

		var msg Message
		err = res.Scan(&msg.Id, &msg.ForumId, &msg.AuthorId, &msg.ClientRef, &msg.Body, &msg.Attachments, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}

		inserted = append(inserted, msg)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return inserted, nil
}

// DeleteMessages removes the intersection of messageIds with the rows that
// actually exist in the forum, returning the ids it deleted.
func (db *PgForumChatRepository) DeleteMessages(forumId int, messageIds []int64) ([]int64, error) {
	rows, err := db.conn.Query(
		"DELETE FROM messages WHERE forum_id = $1 AND id = ANY($2) RETURNING id",
		forumId,
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted = make([]int64, 0, len(messageIds))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		deleted = append(deleted, id)
	}

	return deleted, rows.Err()
}

func (db *PgForumChatRepository) GetMessageAuthors(forumId int, messageIds []int64) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT author_id FROM messages WHERE forum_id = $1 AND id = ANY($2)",
		forumId,
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors = make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		authors = append(authors, id)
	}

	return authors, rows.Err()
}
