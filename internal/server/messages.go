package server

import (
	"net/http"
	"time"

	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/types"
)

// Events carried over the persistent connection.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventResponse       = "response"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagePayload is the client-supplied body of a send_message event.
type MessagePayload struct {
	Body        string             `json:"body"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

type ClientMessage struct {
	BaseMessage
	Event     string          `json:"event"`
	RoomId    int             `json:"roomId"`
	Message   *MessagePayload `json:"message,omitempty"`
	ClientRef string          `json:"clientRef,omitempty"`
	client    *Client
	// forum is resolved on the client's read goroutine before a join reaches
	// the hub, keeping store lookups off the run loop
	forum *database.Forum
	// silent suppresses the ack, used for disconnect and room-switch leaves
	// the client never asked for explicitly.
	silent bool
}

type ServerMessage struct {
	BaseMessage
	Event      string         `json:"event"`
	RoomId     int            `json:"roomId,omitempty"`
	Message    *types.Message `json:"message,omitempty"`
	Response   *Response      `json:"response,omitempty"`
	SkipClient *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func newReceiveMessage(roomId int, msg *types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Event:   EventReceiveMessage,
		RoomId:  roomId,
		Message: msg,
	}
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: EventResponse,
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusAccepted, "", data)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "room not found", nil)
}

func ErrRoomArchived(id int) *ServerMessage {
	return newResponse(id, http.StatusConflict, "room is archived", nil)
}

func ErrNotAuthorized(id int) *ServerMessage {
	return newResponse(id, http.StatusForbidden, "not authorized", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := newResponse(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
