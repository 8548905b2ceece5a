package database

import (
	"database/sql"
)

type PgForumChatRepository struct {
	conn *sql.DB
}

func NewPgForumChatRepository(dsn string) (*PgForumChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgForumChatRepository{conn: db}, nil
}

func (db *PgForumChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgForumChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
