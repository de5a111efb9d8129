package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/GOOTEAKIM/RunUs/internal/room"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "teamrun:"
	channelSuffix = ":broadcast"
	ownerTTL      = 12 * time.Hour
	sendBuffer    = 64

	roomClosedText = "room owner closed the room"
)

type RoomInfo struct {
	ID      string        `json:"id"`
	OwnerID room.UserID   `json:"ownerId"`
	Members []room.Member `json:"members"`
}

// Hub keeps the rooms of one relay instance. With Redis configured every
// broadcast is also published so other instances can deliver it to their own
// sockets.
type Hub struct {
	redis    *redis.Client
	instance string
	cancel   context.CancelFunc

	mu    sync.RWMutex
	rooms map[string]*roomState
}

type roomState struct {
	ownerID room.UserID
	members []room.Member
	clients map[*Client]struct{}
	closed  bool
}

// Client is one socket in one room. UserID is set when the socket presented a
// token; member is who the socket entered the room as.
type Client struct {
	RoomID string
	UserID room.UserID
	Send   chan []byte

	member room.UserID
}

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:    redisClient,
		instance: uuid.NewString(),
		rooms:    map[string]*roomState{},
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		h.subscribeRedis(ctx)
	}
	return h
}

func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) CreateRoom(ctx context.Context, ownerID room.UserID) (RoomInfo, error) {
	id := uuid.NewString()

	h.mu.Lock()
	h.rooms[id] = newRoomState(ownerID)
	h.mu.Unlock()

	if h.redis != nil {
		if err := h.redis.Set(ctx, ownerKey(id), string(ownerID), ownerTTL).Err(); err != nil {
			log.Printf("redis owner set error: %v", err)
		}
	}
	return RoomInfo{ID: id, OwnerID: ownerID, Members: []room.Member{}}, nil
}

func (h *Hub) Room(roomID string) (RoomInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs, ok := h.rooms[roomID]
	if !ok || rs.closed {
		return RoomInfo{}, false
	}
	return RoomInfo{ID: roomID, OwnerID: rs.ownerID, Members: append([]room.Member{}, rs.members...)}, true
}

func (h *Hub) Register(roomID string, userID room.UserID) *Client {
	client := &Client{
		RoomID: roomID,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
	}

	h.mu.RLock()
	_, known := h.rooms[roomID]
	h.mu.RUnlock()

	var owner room.UserID
	if !known {
		owner = h.lookupOwner(roomID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rs := h.rooms[roomID]
	if rs == nil {
		rs = newRoomState(owner)
		h.rooms[roomID] = rs
	}
	rs.clients[client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	var closed bool
	var members []room.Member
	left := client.member
	if rs, ok := h.rooms[client.RoomID]; ok {
		delete(rs.clients, client)
		if rs.closed {
			left = ""
		}
		if left != "" {
			closed, members = h.removeMember(rs, left)
		}
		if len(rs.clients) == 0 && h.rooms[client.RoomID] == rs {
			delete(h.rooms, client.RoomID)
		}
	}
	client.member = ""
	close(client.Send)
	h.mu.Unlock()

	if left != "" {
		h.announceDeparture(client.RoomID, closed, members)
	}
}

// Handle applies one inbound frame from client.
func (h *Hub) Handle(client *Client, data []byte) {
	msg, err := room.Decode(data)
	if err != nil {
		log.Printf("relay: ignoring frame in room %s: %v", client.RoomID, err)
		return
	}
	msg.RoomID = client.RoomID
	if client.UserID != "" {
		msg.UserID = client.UserID
	}

	switch msg.Type {
	case room.TypeEnter:
		h.enter(client, msg)
	case room.TypeLocation:
		if _, open := h.Room(client.RoomID); !open {
			return
		}
		h.broadcastMessage(client.RoomID, msg)
	case room.TypeStart, room.TypeQuit:
		if !h.isOwner(client.RoomID, msg.UserID) {
			log.Printf("relay: %s from non-owner %s in room %s dropped", msg.Type, msg.UserID, client.RoomID)
			return
		}
		h.broadcastMessage(client.RoomID, msg)
	case room.TypeWaitExit:
		h.mu.Lock()
		left := client.member
		var closed bool
		var members []room.Member
		rs, ok := h.rooms[client.RoomID]
		if !ok || rs.closed {
			left = ""
		}
		if left != "" {
			closed, members = h.removeMember(rs, left)
		}
		client.member = ""
		h.mu.Unlock()
		if left != "" {
			h.announceDeparture(client.RoomID, closed, members)
		}
	default:
		// USERLIST_UPDATE and ROOM_CLOSED only flow from the relay.
	}
}

func (h *Hub) enter(client *Client, msg room.Message) {
	if msg.UserID == "" {
		log.Printf("relay: ENTER without user in room %s dropped", client.RoomID)
		return
	}

	h.mu.Lock()
	rs, ok := h.rooms[client.RoomID]
	if !ok || rs.closed {
		h.mu.Unlock()
		return
	}
	if rs.ownerID == "" {
		rs.ownerID = msg.UserID
	}
	found := false
	for i := range rs.members {
		if rs.members[i].UserID == msg.UserID {
			rs.members[i].Nickname = msg.Sender
			found = true
		}
	}
	if !found {
		rs.members = append(rs.members, room.Member{UserID: msg.UserID, Nickname: msg.Sender})
	}
	client.member = msg.UserID
	members := append([]room.Member{}, rs.members...)
	h.mu.Unlock()

	h.broadcastMessage(client.RoomID, userListMessage(client.RoomID, members))
}

// removeMember must be called with h.mu held. It reports whether the owner
// left; the room is then marked closed and stays that way until its last
// socket unregisters.
func (h *Hub) removeMember(rs *roomState, userID room.UserID) (bool, []room.Member) {
	kept := rs.members[:0]
	for _, m := range rs.members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	rs.members = kept

	if userID == rs.ownerID {
		rs.closed = true
		rs.members = nil
		return true, nil
	}
	return false, append([]room.Member{}, rs.members...)
}

func (h *Hub) announceDeparture(roomID string, closed bool, members []room.Member) {
	if closed {
		h.broadcastMessage(roomID, room.Message{Type: room.TypeRoomClosed, RoomID: roomID, Message: roomClosedText})
		if h.redis != nil {
			if err := h.redis.Del(context.Background(), ownerKey(roomID)).Err(); err != nil {
				log.Printf("redis owner delete error: %v", err)
			}
		}
		return
	}
	h.broadcastMessage(roomID, userListMessage(roomID, members))
}

// markClosed applies a ROOM_CLOSED published by another instance.
func (h *Hub) markClosed(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	rs.closed = true
	rs.members = nil
	if len(rs.clients) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) isOwner(roomID string, userID room.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rs, ok := h.rooms[roomID]
	return ok && !rs.closed && userID != "" && rs.ownerID == userID
}

func (h *Hub) lookupOwner(roomID string) room.UserID {
	if h.redis == nil {
		return ""
	}
	owner, err := h.redis.Get(context.Background(), ownerKey(roomID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("redis owner get error: %v", err)
		}
		return ""
	}
	return room.UserID(owner)
}

func (h *Hub) broadcastMessage(roomID string, msg room.Message) {
	payload, err := room.Encode(msg)
	if err != nil {
		log.Printf("relay: encode %s: %v", msg.Type, err)
		return
	}
	h.Broadcast(roomID, payload)
}

// Broadcast delivers payload to every socket in the room, here and on other
// instances.
func (h *Hub) Broadcast(roomID string, payload []byte) {
	h.deliver(roomID, payload)

	if h.redis != nil {
		data, _ := json.Marshal(envelope{Origin: h.instance, Payload: payload})
		err := h.redis.Publish(context.Background(), redisChannel(roomID), data).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliver(roomID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range rs.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
		_ = pubsub.Close()
		return
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Origin == h.instance {
					continue
				}
				roomID := roomIDFromChannel(msg.Channel)
				h.deliver(roomID, env.Payload)
				if m, err := room.Decode(env.Payload); err == nil && m.Type == room.TypeRoomClosed {
					h.markClosed(roomID)
				}
			}
		}
	}()
}

func newRoomState(owner room.UserID) *roomState {
	return &roomState{ownerID: owner, clients: map[*Client]struct{}{}}
}

func userListMessage(roomID string, members []room.Member) room.Message {
	if members == nil {
		members = []room.Member{}
	}
	return room.Message{
		Type:    room.TypeUserListUpdate,
		RoomID:  roomID,
		Message: room.FormatUserList(members),
		Users:   members,
	}
}

func redisChannel(roomID string) string {
	return channelPrefix + roomID + channelSuffix
}

func ownerKey(roomID string) string {
	return channelPrefix + roomID + ":owner"
}

func roomIDFromChannel(ch string) string {
	// teamrun:{room}:broadcast
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
