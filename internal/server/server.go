package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/edustack/forumchat/internal/authz"
	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/gateway"
	"github.com/edustack/forumchat/internal/stats"
)

const (
	metricActiveConnections = "ActiveConnections"
	metricActiveRooms       = "ActiveRooms"
	metricMessagesDropped   = "MessagesDropped"
)

type unloadRoomRequest struct {
	roomId   int
	archived bool
}

// ChatServer owns the set of live connections and the per-forum rooms. All
// room loading and unloading happens on its run loop.
type ChatServer struct {
	log            *log.Logger
	db             database.ForumChatRepository
	gateway        *gateway.MessageGateway
	authz          authz.Authorizer
	registry       *Registry
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	rooms          map[int]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ForumChatRepository, gw *gateway.MessageGateway,
	az authz.Authorizer, registry *Registry, su stats.StatsProvider) (*ChatServer, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	su.RegisterMetric(metricActiveConnections)
	su.RegisterMetric(metricActiveRooms)
	su.RegisterMetric(metricMessagesDropped)

	return &ChatServer{
		log:            logger,
		db:             db,
		gateway:        gw,
		authz:          az,
		registry:       registry,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 64),
		rooms:          make(map[int]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.removeClient(client)
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				r.exit <- exitReq{}
				<-r.done
			}

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	target := joinMsg.RoomId
	client := joinMsg.client

	// switching rooms: leave the old room first so its idle timer can run
	if prev, ok := cs.registry.CurrentRoom(client); ok && prev != target {
		if prevRoom, loaded := cs.rooms[prev]; loaded {
			select {
			case prevRoom.leaveChan <- &ClientMessage{client: client, silent: true}:
			default:
				cs.log.Printf("leave channel full on room %d", prev)
			}
		}
	}

	room, ok := cs.rooms[target]
	if !ok {
		if joinMsg.forum == nil {
			cs.log.Printf("join for room %d arrived without a resolved forum", target)
			client.queueMessage(ErrInternalError(joinMsg.Id))
			return
		}

		room = &Room{
			id:            joinMsg.forum.Id,
			forum:         *joinMsg.forum,
			cs:            cs,
			joinChan:      make(chan *ClientMessage, 256),
			leaveChan:     make(chan *ClientMessage, 256),
			clientMsgChan: make(chan *ClientMessage, 256),
			log:           cs.log,
			exit:          make(chan exitReq),
			done:          make(chan struct{}),
		}

		cs.rooms[room.id] = room
		cs.stats.Incr(metricActiveRooms)
		go room.start()
	}

	select {
	case room.joinChan <- joinMsg:
	default:
		cs.log.Printf("join channel full on room %d", room.id)
		client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
	}
}

func (cs *ChatServer) unloadRoom(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		return
	}

	cs.log.Printf("unloading room %d", req.roomId)
	delete(cs.rooms, req.roomId)
	cs.stats.Decr(metricActiveRooms)

	r.exit <- exitReq{archived: req.archived}
	<-r.done
}

// UnloadRoom evicts a loaded room, notifying its members when the forum was
// archived. Rooms that are not loaded are a no-op.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId int, archived bool) error {
	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId, archived: archived}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(metricActiveConnections)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr(metricActiveConnections)
	}
	cs.clientsLock.Unlock()

	// membership cleanup always succeeds, even on abnormal disconnect
	if roomId, ok := cs.registry.OnDisconnect(c); ok {
		c.clearRoom(roomId)
		if room, loaded := cs.rooms[roomId]; loaded {
			select {
			case room.leaveChan <- &ClientMessage{client: c, silent: true}:
			default:
				cs.log.Printf("leave channel full on room %d", roomId)
			}
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
