package chat

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRoom exists for the lifetime of the server and receives every
	// newly registered client.
	DefaultRoom = "default"

	maxNicknameLen = 16
	maxMessageLen  = 512
)

// Registry is the single synchronization domain for all room and session
// state. Sessions never touch the maps; they submit Events and the Run
// goroutine applies them one at a time, so a client can never be observed in
// zero or two rooms and broadcasts never race a join or leave.
type Registry struct {
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *slog.Logger
}

// registryState is owned exclusively by the Run goroutine. clients is keyed
// by session ID, decoupling identity from the connection object; rooms maps
// room name to its member nickname set.
type registryState struct {
	clients map[string]*Client
	rooms   map[string]map[string]struct{}
}

func newRegistryState() *registryState {
	return &registryState{
		clients: make(map[string]*Client),
		rooms: map[string]map[string]struct{}{
			DefaultRoom: {},
		},
	}
}

func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events: make(chan Event, buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

// Submit queues an event for the Run loop. After Stop the event is dropped so
// session goroutines unwinding during shutdown never block on a dead mailbox;
// a dropped register is closed out on the spot so the client's writer and
// read loop do not outlive the registry.
func (r *Registry) Submit(ev Event) {
	select {
	case <-r.stopCh:
		r.discard(ev)
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-r.stopCh:
		r.discard(ev)
	}
}

// discard handles an event that can no longer reach the Run loop. Only a
// register needs action: its client was never recorded, so nobody else will
// close its Out channel or conn.
func (r *Registry) discard(ev Event) {
	if ev.Type != EventRegister || ev.Client == nil {
		return
	}
	close(ev.Client.Out)
	if ev.Client.Conn != nil {
		_ = ev.Client.Conn.Close()
	}
}

// Stop signals the Run loop to notify clients and exit.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	st := newRegistryState()
	ActiveRooms.Set(float64(len(st.rooms)))

	for {
		select {
		case ev := <-r.events:
			start := time.Now()
			eventType := ""

			switch ev.Type {
			case EventRegister:
				eventType = "register"
				r.handleRegister(st, ev)
				ConnectedClients.Set(float64(len(st.clients)))
			case EventUnregister:
				eventType = "unregister"
				r.handleUnregister(st, ev)
				ConnectedClients.Set(float64(len(st.clients)))
			case EventChat:
				eventType = "chat"
				r.handleChat(st, ev)
			case EventJoin:
				eventType = "join"
				r.handleJoin(st, ev)
				ActiveRooms.Set(float64(len(st.rooms)))
			case EventNick:
				eventType = "nick"
				r.handleNick(st, ev)
			case EventRooms:
				eventType = "rooms"
				r.handleRooms(st, ev)
			case EventMyRoom:
				eventType = "myroom"
				r.handleMyRoom(st, ev)
			case EventPersonal:
				eventType = "personal"
				r.handlePersonal(st, ev)
			case EventHelp:
				eventType = "help"
				r.handleHelp(st, ev)
			case EventInvalid:
				eventType = "invalid"
				r.handleInvalid(st, ev)
			}

			MessagesTotal.WithLabelValues(eventType).Inc()
			EventProcessingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			r.notifyShutdown(st)
			return
		}
	}
}

// handleRegister assigns a placeholder nickname, records the session and puts
// it into the default room, then greets it.
func (r *Registry) handleRegister(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || c.ID == "" {
		return
	}
	if _, exists := st.clients[c.ID]; exists {
		r.logger.Warn("duplicate register ignored", "session", c.ID)
		return
	}

	suffix := c.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	c.Nickname = "guest-" + suffix
	c.Room = DefaultRoom
	st.clients[c.ID] = c
	st.rooms[DefaultRoom][c.Nickname] = struct{}{}

	r.logger.Info("client registered", "session", c.ID, "nickname", c.Nickname)
	sendLine(c, "Write /help")
}

// handleUnregister runs the Closing sequence: drop the client from its room
// and the session registry, tell the former room, and stop the writer. Safe
// to invoke more than once for the same session.
func (r *Registry) handleUnregister(st *registryState, ev Event) {
	c := ev.Client
	if c == nil {
		return
	}
	if _, ok := st.clients[c.ID]; !ok {
		return
	}
	delete(st.clients, c.ID)
	r.removeFromRoom(st, c)

	r.logger.Info("client disconnected", "session", c.ID, "nickname", c.Nickname)

	// Closing Out stops the writer goroutine gracefully.
	close(c.Out)

	if members, ok := st.rooms[c.Room]; ok {
		r.broadcastTo(st, members, c.Nickname+" has left!")
	}
}

// handleChat broadcasts "<nickname>: <text>" to the sender's current room,
// sender included. The recipient set is read at dispatch time, never a stale
// snapshot. Empty payloads are suppressed.
func (r *Registry) handleChat(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	msg := ev.Text
	if strings.TrimSpace(msg) == "" {
		return
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	members, ok := st.rooms[c.Room]
	if !ok {
		r.logger.Warn("client in unknown room", "nickname", c.Nickname, "room", c.Room)
		return
	}
	r.broadcastTo(st, members, c.Nickname+": "+msg)
}

// handleJoin moves the client into the named room, creating it on first join.
// Removal from the old room and insertion into the new one happen in the same
// event, so membership is atomic to every observer.
func (r *Registry) handleJoin(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	if ev.Name == "" {
		r.logger.Warn("join with empty room name", "nickname", c.Nickname)
		return
	}
	if err := r.moveToRoom(st, c, ev.Name); err != nil {
		if err == ErrAlreadyInRoom {
			sendLine(c, "You already in this room")
		}
		return
	}
	sendLine(c, "Room changed")
}

func (r *Registry) moveToRoom(st *registryState, c *Client, room string) error {
	if room == c.Room {
		return ErrAlreadyInRoom
	}

	r.removeFromRoom(st, c)
	if _, ok := st.rooms[room]; !ok {
		st.rooms[room] = make(map[string]struct{})
	}
	st.rooms[room][c.Nickname] = struct{}{}
	c.Room = room

	r.logger.Info("room changed", "nickname", c.Nickname, "room", room)
	return nil
}

// handleNick renames the client and rekeys its room membership in one step.
// Nicknames are unique across the server; a rename to a taken name fails.
func (r *Registry) handleNick(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	nick := strings.TrimSpace(ev.Name)
	if err := r.rename(st, c, nick); err != nil {
		switch err {
		case ErrNicknameTaken:
			sendLine(c, "Nickname already taken")
		case ErrNicknameInvalid:
			sendLine(c, "Nickname invalid")
		}
		return
	}
	sendLine(c, "Nickname changed to "+nick)
}

func (r *Registry) rename(st *registryState, c *Client, nick string) error {
	if nick == "" || len(nick) > maxNicknameLen {
		return ErrNicknameInvalid
	}
	if nick == c.Nickname {
		return nil
	}
	for _, other := range st.clients {
		if other.Nickname == nick {
			return ErrNicknameTaken
		}
	}

	if members, ok := st.rooms[c.Room]; ok {
		delete(members, c.Nickname)
		members[nick] = struct{}{}
	} else {
		r.logger.Warn("rename with unknown room", "nickname", c.Nickname, "room", c.Room)
	}

	r.logger.Info("nickname changed", "old", c.Nickname, "new", nick)
	c.Nickname = nick
	return nil
}

// handleRooms answers with one line per room, members sorted, rooms sorted.
func (r *Registry) handleRooms(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	names := make([]string, 0, len(st.rooms))
	for name := range st.rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		members := make([]string, 0, len(st.rooms[name]))
		for member := range st.rooms[name] {
			members = append(members, member)
		}
		sort.Strings(members)
		sendLine(c, name+": "+strings.Join(members, ", "))
	}
}

func (r *Registry) handleMyRoom(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	sendLine(c, "Your room is "+c.Room)
}

// handlePersonal delivers the payload to exactly {sender, recipient},
// regardless of rooms. A disconnected recipient is silently skipped. The
// recipient set is built fresh per call.
func (r *Registry) handlePersonal(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	msg := strings.TrimSpace(ev.Text)
	if msg == "" {
		return
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	recipients := map[string]struct{}{
		c.Nickname: {},
		ev.Name:    {},
	}
	r.broadcastTo(st, recipients, "personal:"+c.Nickname+": "+msg)
}

// handleHelp replays the static command summary. The response never depends
// on prior conversation state.
func (r *Registry) handleHelp(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	for _, line := range HelpLines {
		sendLine(c, line)
	}
}

func (r *Registry) handleInvalid(st *registryState, ev Event) {
	c := ev.Client
	if c == nil || !r.registered(st, c) {
		return
	}
	sendLine(c, "Invalid Command use /help")
}

// broadcastTo sends the line to every connected session whose nickname is in
// the recipient set. Nicknames with no live session are skipped.
func (r *Registry) broadcastTo(st *registryState, recipients map[string]struct{}, line string) {
	for _, c := range st.clients {
		if _, ok := recipients[c.Nickname]; ok {
			sendLine(c, line)
		}
	}
}

// notifyShutdown tells every client the server is going away, then closes
// the conns so every session read loop unblocks. Each conn is closed once its
// writer has drained, giving the quit notice a chance to reach the wire.
func (r *Registry) notifyShutdown(st *registryState) {
	for _, c := range st.clients {
		sendLine(c, "quit")
		close(c.Out)
	}
	for _, c := range st.clients {
		if c.Conn == nil {
			continue
		}
		conn, done := c.Conn, c.writerDone
		go func() {
			if done != nil {
				select {
				case <-done:
				case <-time.After(time.Second):
				}
			}
			_ = conn.Close()
		}()
	}

	// Events still queued never reached the state; close out any register
	// among them so its session goroutines can exit.
	for {
		select {
		case ev := <-r.events:
			r.discard(ev)
		default:
			return
		}
	}
}

func (r *Registry) registered(st *registryState, c *Client) bool {
	if _, ok := st.clients[c.ID]; ok {
		return true
	}
	r.logger.Warn("event from unregistered session", "session", c.ID)
	return false
}

// removeFromRoom drops the client's nickname from its current room without
// reassigning it. The default room is kept alive even when it empties.
func (r *Registry) removeFromRoom(st *registryState, c *Client) {
	members, ok := st.rooms[c.Room]
	if !ok {
		return
	}
	delete(members, c.Nickname)
}

// NewSessionID generates the registry key for one connection.
func NewSessionID() string {
	return uuid.NewString()
}

func sendLine(c *Client, line string) {
	// Non-blocking send prevents slow/disconnected clients from blocking the registry.
	select {
	case c.Out <- line:
	default:
	}
}
