package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Type string

const (
	TypeEnter          Type = "ENTER"
	TypeLocation       Type = "LOCATION"
	TypeStart          Type = "START"
	TypeQuit           Type = "QUIT"
	TypeWaitExit       Type = "WAIT_EXIT"
	TypeUserListUpdate Type = "USERLIST_UPDATE"
	TypeRoomClosed     Type = "ROOM_CLOSED"
)

// userListPrefix is the sentence older servers put in front of the nickname
// list of a USERLIST_UPDATE.
const userListPrefix = "현재 방에 있는 사용자: "

var (
	ErrUnknownType      = errors.New("room: unknown message type")
	ErrMalformedMessage = errors.New("room: malformed message")
)

func (t Type) Known() bool {
	switch t {
	case TypeEnter, TypeLocation, TypeStart, TypeQuit, TypeWaitExit, TypeUserListUpdate, TypeRoomClosed:
		return true
	}
	return false
}

// UserID accepts both JSON strings and numbers; the backend has sent both.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) String() string { return string(id) }

type Member struct {
	UserID   UserID `json:"userId"`
	Nickname string `json:"nickname"`
}

// Message is one JSON text frame on the room channel.
type Message struct {
	Type      Type     `json:"type"`
	RoomID    string   `json:"roomId"`
	Sender    string   `json:"sender"`
	Message   string   `json:"message"`
	UserID    UserID   `json:"userId"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	Users     []Member `json:"users,omitempty"`
}

// Envelope carries the fields every outbound message repeats.
type Envelope struct {
	RoomID   string
	Nickname string
	UserID   UserID
}

func (e Envelope) New(t Type, text string) Message {
	return Message{
		Type:    t,
		RoomID:  e.RoomID,
		Sender:  e.Nickname,
		Message: text,
		UserID:  e.UserID,
	}
}

func (e Envelope) Location(lat, lng float64, distance *float64) Message {
	msg := e.New(TypeLocation, "")
	msg.Latitude = &lat
	msg.Longitude = &lng
	msg.Distance = distance
	return msg
}

func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a frame and rejects types and payloads this client does not
// understand.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !msg.Type.Known() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	if msg.Type == TypeLocation && (msg.Latitude == nil || msg.Longitude == nil || msg.UserID == "") {
		return Message{}, fmt.Errorf("%w: location without coordinates or user", ErrMalformedMessage)
	}
	return msg, nil
}

// Members returns the roster of a USERLIST_UPDATE. The structured users list
// wins; otherwise the legacy sentence is split into nicknames.
func (m Message) Members() []Member {
	if len(m.Users) > 0 {
		out := make([]Member, len(m.Users))
		copy(out, m.Users)
		return out
	}
	return ParseUserList(m.Message)
}

func ParseUserList(text string) []Member {
	_, list, ok := strings.Cut(text, userListPrefix)
	if !ok || list == "" {
		return nil
	}
	names := strings.Split(list, ", ")
	members := make([]Member, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		members = append(members, Member{Nickname: name})
	}
	return members
}

func FormatUserList(members []Member) string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Nickname)
	}
	return userListPrefix + strings.Join(names, ", ")
}
