// Package gateway is the sole writer to the message store on the ingestion
// path. It reconciles client-submitted batches against the store before
// appending, so retried batches never persist a message twice.
package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/stats"
	"github.com/edustack/forumchat/internal/types"
)

var (
	ErrInvalidForum       = errors.New("invalid forum id")
	ErrForumNotFound      = errors.New("forum not found")
	ErrForumArchived      = errors.New("forum is archived")
	ErrEmptyBatch         = errors.New("empty batch")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

const (
	metricMessagesPersisted    = "MessagesPersisted"
	metricMessagesDeduplicated = "MessagesDeduplicated"
	metricMessagesDeleted      = "MessagesDeleted"
)

type MessageGateway struct {
	log   *log.Logger
	db    database.ForumChatRepository
	stats stats.StatsProvider
}

func NewMessageGateway(logger *log.Logger, db database.ForumChatRepository, su stats.StatsProvider) *MessageGateway {
	su.RegisterMetric(metricMessagesPersisted)
	su.RegisterMetric(metricMessagesDeduplicated)
	su.RegisterMetric(metricMessagesDeleted)

	return &MessageGateway{
		log:   logger,
		db:    db,
		stats: su,
	}
}

// dedupRef normalizes a candidate's dedup reference. Clients that predate
// client refs identify retries by their provisional id; a candidate with
// neither carries no retry identity and is never deduplicated.
func dedupRef(msg types.Message) string {
	if msg.ClientRef != "" {
		return msg.ClientRef
	}
	if msg.Id > 0 {
		return strconv.FormatInt(msg.Id, 10)
	}
	return ""
}

func encodeAttachments(attachments []types.Attachment) (string, error) {
	if len(attachments) == 0 {
		return "", nil
	}

	raw, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(raw), nil
}

func decodeAttachments(raw string) ([]types.Attachment, error) {
	if raw == "" {
		return nil, nil
	}

	var attachments []types.Attachment
	if err := json.Unmarshal([]byte(raw), &attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return attachments, nil
}

func toApiMessage(msg database.Message) (types.Message, error) {
	attachments, err := decodeAttachments(msg.Attachments)
	if err != nil {
		return types.Message{}, err
	}

	return types.Message{
		Id:          msg.Id,
		ForumId:     msg.ForumId,
		AuthorId:    msg.AuthorId,
		ClientRef:   msg.ClientRef,
		Body:        msg.Body,
		Attachments: attachments,
		CreatedAt:   msg.CreatedAt,
	}, nil
}

// getForum resolves a forum id, mapping missing rows to ErrForumNotFound and
// anything else to ErrStorageUnavailable.
func (g *MessageGateway) getForum(forumId int) (database.Forum, error) {
	if forumId <= 0 {
		return database.Forum{}, ErrInvalidForum
	}

	forum, err := g.db.GetForumById(forumId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Forum{}, ErrForumNotFound
		}
		return database.Forum{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return forum, nil
}

// IngestBatch filters candidates whose dedup key is already known for the
// forum and appends the remainder in one transaction. It returns only the
// newly persisted messages; an empty result means the whole batch was
// duplicates, which is not an error.
func (g *MessageGateway) IngestBatch(forumId int, candidates []types.Message) ([]types.Message, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyBatch
	}

	forum, err := g.getForum(forumId)
	if err != nil {
		return nil, err
	}
	if forum.Archived {
		return nil, ErrForumArchived
	}

	known, err := g.db.KnownDedupKeys(forumId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	seen := make(map[database.DedupKey]struct{}, len(candidates))
	var fresh []database.NewMessage
	for _, candidate := range candidates {
		key := database.DedupKey{AuthorId: candidate.AuthorId, ClientRef: dedupRef(candidate)}
		if key.ClientRef != "" {
			if _, ok := known[key]; ok {
				g.stats.Incr(metricMessagesDeduplicated)
				continue
			}
			if _, ok := seen[key]; ok {
				// duplicate within the batch itself
				g.stats.Incr(metricMessagesDeduplicated)
				continue
			}
			seen[key] = struct{}{}
		}

		attachments, err := encodeAttachments(candidate.Attachments)
		if err != nil {
			return nil, err
		}

		fresh = append(fresh, database.NewMessage{
			AuthorId:    candidate.AuthorId,
			ClientRef:   key.ClientRef,
			Body:        candidate.Body,
			Attachments: attachments,
		})
	}

	if len(fresh) == 0 {
		g.log.Printf("ingest batch for forum %d contained only duplicates", forumId)
		return []types.Message{}, nil
	}

	inserted, err := g.db.InsertMessages(forumId, fresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	persisted := make([]types.Message, 0, len(inserted))
	for _, msg := range inserted {
		apiMsg, err := toApiMessage(msg)
		if err != nil {
			return nil, err
		}
		persisted = append(persisted, apiMsg)
		g.stats.Incr(metricMessagesPersisted)
	}

	return persisted, nil
}

// DeleteBatch deletes the intersection of messageIds with the messages that
// exist in the forum. Unknown ids are silently ignored, which keeps the
// operation idempotent under retries.
func (g *MessageGateway) DeleteBatch(forumId int, messageIds []int64) ([]int64, error) {
	if len(messageIds) == 0 {
		return nil, ErrEmptyBatch
	}

	if _, err := g.getForum(forumId); err != nil {
		return nil, err
	}

	deleted, err := g.db.DeleteMessages(forumId, messageIds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	for range deleted {
		g.stats.Incr(metricMessagesDeleted)
	}

	return deleted, nil
}

// SaveMessage persists a single live message. The returned bool reports
// whether the message was a duplicate of an already-persisted one, in which
// case nothing was written.
func (g *MessageGateway) SaveMessage(forumId, authorId int, clientRef, body string, attachments []types.Attachment) (types.Message, bool, error) {
	forum, err := g.getForum(forumId)
	if err != nil {
		return types.Message{}, false, err
	}
	if forum.Archived {
		return types.Message{}, false, ErrForumArchived
	}

	if clientRef != "" {
		known, err := g.db.KnownDedupKeys(forumId)
		if err != nil {
			return types.Message{}, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if _, ok := known[database.DedupKey{AuthorId: authorId, ClientRef: clientRef}]; ok {
			g.stats.Incr(metricMessagesDeduplicated)
			return types.Message{}, true, nil
		}
	}

	encoded, err := encodeAttachments(attachments)
	if err != nil {
		return types.Message{}, false, err
	}

	inserted, err := g.db.InsertMessages(forumId, []database.NewMessage{{
		AuthorId:    authorId,
		ClientRef:   clientRef,
		Body:        body,
		Attachments: encoded,
	}})
	if err != nil {
		return types.Message{}, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(inserted) != 1 {
		return types.Message{}, false, fmt.Errorf("expected 1 inserted message, got %d", len(inserted))
	}

	g.stats.Incr(metricMessagesPersisted)

	msg, err := toApiMessage(inserted[0])
	return msg, false, err
}

// History returns the forum's durable log ordered by creation time, ties
// broken by id.
func (g *MessageGateway) History(forumId int) ([]types.Message, error) {
	if _, err := g.getForum(forumId); err != nil {
		return nil, err
	}

	dbMessages, err := g.db.ListMessages(forumId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		apiMsg, err := toApiMessage(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, apiMsg)
	}

	return messages, nil
}

// MessageAuthors reports the distinct authors of the given messages, used by
// the delete capability check.
func (g *MessageGateway) MessageAuthors(forumId int, messageIds []int64) ([]int, error) {
	authors, err := g.db.GetMessageAuthors(forumId, messageIds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return authors, nil
}
