package server

import (
	"testing"

	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/stats"
	"github.com/edustack/forumchat/internal/testutil"
	"github.com/edustack/forumchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDispatch(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	db := &database.MockForumChatRepository{}
	db.On("GetForumById", 42).Return(database.Forum{Id: 42}, nil)
	cs := newTestChatServer(t, db, su)

	newClient := func() *Client {
		return newServerTestClient(t, cs, types.User{Id: 1, Username: "student", Role: types.RoleStudent})
	}

	t.Run("join is forwarded to the server with its forum", func(t *testing.T) {
		c := newClient()
		msg := &ClientMessage{BaseMessage: BaseMessage{Id: 1}, Event: EventJoinRoom, RoomId: 42, client: c}
		c.dispatch(msg)

		select {
		case got := <-cs.joinChan:
			assert.Equal(t, msg, got, "expected join to be forwarded")
			assert.NotNil(t, got.forum, "expected the forum to be resolved before the hub sees the join")
			assert.Equal(t, 42, got.forum.Id)
		default:
			t.Fatal("expected a join request on the server channel")
		}
	})

	t.Run("missing room id is rejected", func(t *testing.T) {
		c := newClient()
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, Event: EventJoinRoom, client: c})

		ack := drainMessage(t, c)
		assert.Equal(t, 400, ack.Response.ResponseCode, "expected invalid message response")
	})

	t.Run("unknown event is rejected", func(t *testing.T) {
		c := newClient()
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 3}, Event: "shout", RoomId: 42, client: c})

		ack := drainMessage(t, c)
		assert.Equal(t, 400, ack.Response.ResponseCode)
	})

	t.Run("send without a body is rejected", func(t *testing.T) {
		c := newClient()
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 4}, Event: EventSendMessage, RoomId: 42, client: c})

		ack := drainMessage(t, c)
		assert.Equal(t, 400, ack.Response.ResponseCode)
	})

	t.Run("send outside the joined room is rejected", func(t *testing.T) {
		c := newClient()
		c.dispatch(&ClientMessage{
			BaseMessage: BaseMessage{Id: 5},
			Event:       EventSendMessage,
			RoomId:      42,
			Message:     &MessagePayload{Body: "hello"},
			client:      c,
		})

		ack := drainMessage(t, c)
		assert.Equal(t, 404, ack.Response.ResponseCode, "expected room not found")
	})

	t.Run("leave for a room the client is not in is rejected", func(t *testing.T) {
		c := newClient()
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 6}, Event: EventLeaveRoom, RoomId: 42, client: c})

		ack := drainMessage(t, c)
		assert.Equal(t, 404, ack.Response.ResponseCode)
	})
}

func Test_queueMessage(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", "MessagesDropped").Once()
	cs := newTestChatServer(t, &database.MockForumChatRepository{}, su)

	c := &Client{
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerMessage, 1),
		stop:       make(chan struct{}),
	}

	assert.True(t, c.queueMessage(NoErrOK(1, nil)), "expected message to be accepted")
	assert.False(t, c.queueMessage(NoErrOK(2, nil)), "expected message to be dropped when the buffer is full")
}

func Test_stopClient(t *testing.T) {
	c := &Client{stop: make(chan struct{})}

	c.stopClient()
	select {
	case <-c.stop:
	default:
		t.Fatal("expected stop channel to be closed")
	}

	// stopping twice must not panic
	c.stopClient()
}

func Test_setAndClearRoom(t *testing.T) {
	c := &Client{}
	r := &Room{id: 42}

	c.setRoom(r)
	assert.Equal(t, r, c.currentRoom())

	// clearing a different room leaves the current one alone
	c.clearRoom(77)
	assert.Equal(t, r, c.currentRoom())

	c.clearRoom(42)
	assert.Nil(t, c.currentRoom())
}
