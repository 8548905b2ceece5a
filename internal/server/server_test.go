package server

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/edustack/forumchat/internal/authz"
	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/gateway"
	"github.com/edustack/forumchat/internal/stats"
	"github.com/edustack/forumchat/internal/testutil"
	"github.com/edustack/forumchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestChatServer creates a ChatServer wired to a mock repository. The
// stats updater expects both the gateway's and the server's metric
// registrations.
func newTestChatServer(t *testing.T, db database.ForumChatRepository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(6)

	logger := testutil.TestLogger(t)
	gw := gateway.NewMessageGateway(logger, db, su)
	cs, err := NewChatServer(logger, db, gw, authz.NewRoleAuthorizer(), NewRegistry(), su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func newServerTestClient(t *testing.T, cs *ChatServer, user types.User) *Client {
	return &Client{
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       user,
		send:       make(chan *ServerMessage, 16),
		stop:       make(chan struct{}),
	}
}

// awaitMessage reads the next queued message for the client or fails the test.
func awaitMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockForumChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(6)

	logger := testutil.TestLogger(t)
	gw := gateway.NewMessageGateway(logger, db, su)
	cs, err := NewChatServer(logger, db, gw, authz.NewRoleAuthorizer(), NewRegistry(), su)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.registry, "expected registry to be set")
	assert.NotNil(t, cs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
}

func TestNewChatServer_RequiresRegistry(t *testing.T) {
	db := &database.MockForumChatRepository{}
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()

	gw := gateway.NewMessageGateway(testutil.TestLogger(t), db, su)
	_, err := NewChatServer(testutil.TestLogger(t), db, gw, authz.NewRoleAuthorizer(), nil, su)
	assert.Error(t, err, "expected error when registry is nil")
}

func TestHandleJoin(t *testing.T) {
	student := types.User{Id: 1, Username: "student", Role: types.RoleStudent}

	t.Run("join loads the room and acks", func(t *testing.T) {
		db := &database.MockForumChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetForumById", 42).Return(database.Forum{Id: 42, Name: "algorithms"}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		su.On("Decr", mock.Anything).Maybe()
		cs := newTestChatServer(t, db, su)
		go cs.Run()
		defer cs.Shutdown(context.Background())

		c := newServerTestClient(t, cs, student)
		c.dispatch(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Event:       EventJoinRoom,
			RoomId:      42,
			client:      c,
		})

		ack := awaitMessage(t, c)
		assert.Equal(t, 1, ack.Id, "expected ack to reference the join message")
		assert.Equal(t, 200, ack.Response.ResponseCode, "expected join to succeed")
		assert.Equal(t, 1, cs.registry.Count(42), "expected client to be a member")
	})

	t.Run("joining an unknown forum acks not found", func(t *testing.T) {
		db := &database.MockForumChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetForumById", 99).Return(database.Forum{}, sql.ErrNoRows).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		su.On("Decr", mock.Anything).Maybe()
		cs := newTestChatServer(t, db, su)
		go cs.Run()
		defer cs.Shutdown(context.Background())

		c := newServerTestClient(t, cs, student)
		c.dispatch(&ClientMessage{
			BaseMessage: BaseMessage{Id: 2},
			Event:       EventJoinRoom,
			RoomId:      99,
			client:      c,
		})

		ack := awaitMessage(t, c)
		assert.Equal(t, 404, ack.Response.ResponseCode, "expected room not found")
		assert.Equal(t, 0, cs.registry.Count(99), "expected no membership")
	})

	t.Run("joining a second forum leaves the first", func(t *testing.T) {
		db := &database.MockForumChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetForumById", 42).Return(database.Forum{Id: 42}, nil).Once()
		db.On("GetForumById", 77).Return(database.Forum{Id: 77}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		su.On("Decr", mock.Anything).Maybe()
		cs := newTestChatServer(t, db, su)
		go cs.Run()
		defer cs.Shutdown(context.Background())

		c := newServerTestClient(t, cs, student)
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Event: EventJoinRoom, RoomId: 42, client: c})
		ack := awaitMessage(t, c)
		assert.Equal(t, 200, ack.Response.ResponseCode)

		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, Event: EventJoinRoom, RoomId: 77, client: c})
		ack = awaitMessage(t, c)
		assert.Equal(t, 200, ack.Response.ResponseCode)

		assert.Eventually(t, func() bool {
			return cs.registry.Count(42) == 0 && cs.registry.Count(77) == 1
		}, time.Second, 10*time.Millisecond, "expected membership to move to the new room")
	})
}

func TestRemoveClient(t *testing.T) {
	db := &database.MockForumChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", "ActiveConnections").Once()
	su.On("Decr", "ActiveConnections").Once()

	cs := newTestChatServer(t, db, su)

	c := newServerTestClient(t, cs, types.User{Id: 1, Username: "student", Role: types.RoleStudent})
	cs.addClient(c)
	assert.Len(t, cs.clients, 1, "expected client to be tracked")

	// simulate an abrupt disconnect while joined to a room
	cs.registry.Join(c, 42)
	cs.removeClient(c)

	assert.Len(t, cs.clients, 0, "expected client to be removed")
	assert.Equal(t, 0, cs.registry.Count(42), "expected no stale membership after disconnect")

	// removing twice is a no-op
	cs.removeClient(c)
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown with no rooms", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockForumChatRepository{}, su)
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded when run loop is stuck", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockForumChatRepository{}, su)
		// Run is never started, so the done channel never closes

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("shutdown stops loaded rooms", func(t *testing.T) {
		db := &database.MockForumChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetForumById", 42).Return(database.Forum{Id: 42}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		su.On("Decr", mock.Anything).Maybe()
		cs := newTestChatServer(t, db, su)
		go cs.Run()

		c := newServerTestClient(t, cs, types.User{Id: 1, Username: "student", Role: types.RoleStudent})
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Event: EventJoinRoom, RoomId: 42, client: c})
		awaitMessage(t, c)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected shutdown to stop the loaded room")
	})
}

func TestUnloadRoom(t *testing.T) {
	db := &database.MockForumChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetForumById", 42).Return(database.Forum{Id: 42}, nil).Once()

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	cs := newTestChatServer(t, db, su)
	go cs.Run()
	defer cs.Shutdown(context.Background())

	c := newServerTestClient(t, cs, types.User{Id: 1, Username: "student", Role: types.RoleStudent})
	c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Event: EventJoinRoom, RoomId: 42, client: c})
	ack := awaitMessage(t, c)
	assert.Equal(t, 200, ack.Response.ResponseCode)

	err := cs.UnloadRoom(context.Background(), 42, true)
	assert.NoError(t, err, "expected unload request to be accepted")

	// the member is notified that the room went away
	notice := awaitMessage(t, c)
	assert.NotNil(t, notice.Response, "expected a response message")
	assert.Equal(t, 410, notice.Response.ResponseCode, "expected archived notice")

	assert.Eventually(t, func() bool {
		return cs.registry.Count(42) == 0
	}, time.Second, 10*time.Millisecond, "expected membership to be cleared")
}
