package chat

import "net"

// Client is the per-connection session state. Nickname and Room are owned by
// the registry goroutine once the client is registered; the session goroutine
// must not read or write them directly.
type Client struct {
	ID       string
	Conn     net.Conn
	Nickname string
	Room     string
	Out      chan string // outbound lines drained by the writer goroutine

	writerDone chan struct{} // closed when the writer goroutine exits
}

type EventType int

const (
	EventRegister EventType = iota
	EventUnregister
	EventChat
	EventJoin
	EventNick
	EventRooms
	EventMyRoom
	EventPersonal
	EventHelp
	EventInvalid
)

// Event is the registry mailbox message. Name carries the target room for
// join, the new nickname for nick, and the recipient nickname for personal.
type Event struct {
	Type   EventType
	Client *Client
	Name   string
	Text   string
}

var (
	ErrAlreadyInRoom   = errorString("already_in_room")
	ErrNicknameTaken   = errorString("nickname_taken")
	ErrNicknameInvalid = errorString("nickname_invalid")
)

type errorString string

func (e errorString) Error() string { return string(e) }
