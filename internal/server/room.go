package server

import (
	"errors"
	"log"
	"time"

	"github.com/edustack/forumchat/internal/authz"
	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/gateway"
	"github.com/edustack/forumchat/internal/types"
)

const idleRoomTimeout = time.Second * 30

type exitReq struct {
	archived bool
}

// Room serializes all joins, leaves and publishes for a single forum on one
// goroutine, which is what preserves per-room delivery order.
type Room struct {
	id            int
	forum         database.Forum
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	log           *log.Logger
	// killTimer unloads the room after it has been empty for a while
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func apiForum(f database.Forum) types.Forum {
	return types.Forum{
		Id:           f.Id,
		ExternalId:   f.ExternalId,
		Name:         f.Name,
		Description:  f.Description,
		CourseId:     f.CourseId,
		DepartmentId: f.DepartmentId,
		SubjectId:    f.SubjectId,
		ModeratorId:  f.ModeratorId,
		Private:      f.Private,
		Archived:     f.Archived,
		Tags:         f.Tags,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %d", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			r.handlePublish(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	forum := apiForum(r.forum)
	if err := r.cs.authz.Authorize(c.user, authz.ActionRead, authz.Resource{Forum: &forum}); err != nil {
		r.log.Printf("join denied for %q in room %d", c.user.Username, r.id)
		c.queueMessage(ErrNotAuthorized(join.Id))
		if r.cs.registry.Count(r.id) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	r.cs.registry.Join(c, r.id)
	c.setRoom(r)

	c.queueMessage(NoErrOK(join.Id, forum))
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client
	r.cs.registry.Leave(c, r.id)
	c.clearRoom(r.id)

	if !leaveMsg.silent {
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	if r.cs.registry.Count(r.id) == 0 {
		r.log.Printf("no members in room %d, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client
	forum := apiForum(r.forum)
	if err := r.cs.authz.Authorize(c.user, authz.ActionSend, authz.Resource{Forum: &forum}); err != nil {
		c.queueMessage(ErrNotAuthorized(msg.Id))
		return
	}

	saved, dup, err := r.cs.gateway.SaveMessage(r.id, c.user.Id, msg.ClientRef, msg.Message.Body, msg.Message.Attachments)
	if err != nil {
		r.log.Printf("save message in room %d: %v", r.id, err)
		switch {
		case errors.Is(err, gateway.ErrForumArchived):
			c.queueMessage(ErrRoomArchived(msg.Id))
		case errors.Is(err, gateway.ErrStorageUnavailable):
			c.queueMessage(ErrServiceUnavailable(msg.Id))
		default:
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	if dup {
		// retried send whose original was already persisted
		c.queueMessage(NoErrOK(msg.Id, nil))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id, saved))

	broadcastMsg := newReceiveMessage(r.id, &saved)
	broadcastMsg.SkipClient = c
	r.broadcast(broadcastMsg)
}

func (r *Room) handleRoomTimeout() {
	if r.cs.registry.Count(r.id) > 0 {
		return
	}

	r.log.Printf("room %d timed out", r.id)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.id}:
	default:
		// try again later
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %d is exiting", r.id)

	if e.archived {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Event:  EventResponse,
			RoomId: r.id,
			Response: &Response{
				ResponseCode: 410,
				Error:        "room archived",
			},
		})
	}

	for _, c := range r.cs.registry.MembersOf(r.id) {
		r.cs.registry.Leave(c, r.id)
		c.clearRoom(r.id)
	}

	close(r.done)
}

// broadcast fans the message out to the room's current members. Delivery is
// fire-and-forget per member: a stalled or closed connection is skipped and
// never blocks the others.
func (r *Room) broadcast(msg *ServerMessage) {
	for _, client := range r.cs.registry.MembersOf(r.id) {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) {
			r.log.Printf("dropped broadcast to %q in room %d", client.user.Username, r.id)
		}
	}
}
