package chat

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialServer(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (tc *testConn) sendf(line string) {
	tc.t.Helper()
	_, err := tc.conn.Write([]byte(line + "\n"))
	require.NoError(tc.t, err)
}

func (tc *testConn) expect(want string) {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := tc.r.ReadString('\n')
	require.NoError(tc.t, err)
	require.Equal(tc.t, want, strings.TrimRight(line, "\n"))
}

func startServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer("127.0.0.1:0", 128, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

// Full three-client scenario over real TCP: welcome, rename, room moves,
// room-scoped chat, listing, personal delivery and departure.
func TestServer_EndToEnd(t *testing.T) {
	srv := startServer(t)

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")
	a.sendf("/nick alice")
	a.expect("Nickname changed to alice")

	b := dialServer(t, srv.Addr())
	b.expect("Write /help")
	b.sendf("/nick bob")
	b.expect("Nickname changed to bob")

	c := dialServer(t, srv.Addr())
	c.expect("Write /help")
	c.sendf("/nick carol")
	c.expect("Nickname changed to carol")

	c.sendf("/join lounge")
	c.expect("Room changed")

	// Chat from alice stays inside default.
	a.sendf("hi")
	a.expect("alice: hi")
	b.expect("alice: hi")

	// carol saw nothing: her next line is the answer to her own probe.
	c.sendf("/myroom")
	c.expect("Your room is lounge")

	c.sendf("/rooms")
	c.expect("default: alice, bob")
	c.expect("lounge: carol")

	// Personal messages cross room boundaries and reach exactly {sender, target}.
	a.sendf("/personal carol psst")
	a.expect("personal:alice: psst")
	c.expect("personal:alice: psst")
	b.sendf("/myroom")
	b.expect("Your room is default")

	// quit triggers the departure notice for the former room.
	b.sendf("quit")
	a.expect("bob has left!")
}

func TestServer_JoinSameRoomIsAnError(t *testing.T) {
	srv := startServer(t)

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")
	a.sendf("/join default")
	a.expect("You already in this room")
}

func TestServer_UnknownCommand(t *testing.T) {
	srv := startServer(t)

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")
	a.sendf("/frobnicate")
	a.expect("Invalid Command use /help")
}

func TestServer_HelpText(t *testing.T) {
	srv := startServer(t)

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")
	a.sendf("/help")
	for _, line := range HelpLines {
		a.expect(line)
	}
}

// An abrupt close (no quit line) must still run the Closing sequence.
func TestServer_DisconnectBroadcastsDeparture(t *testing.T) {
	srv := startServer(t)

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")
	a.sendf("/nick alice")
	a.expect("Nickname changed to alice")

	b := dialServer(t, srv.Addr())
	b.expect("Write /help")
	b.sendf("/nick bob")
	b.expect("Nickname changed to bob")

	require.NoError(t, b.conn.Close())
	a.expect("bob has left!")
}

// A dropped peer never takes the server down; the remaining session keeps
// working.
func TestServer_SurvivesBrokenPeer(t *testing.T) {
	srv := startServer(t)

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")

	b := dialServer(t, srv.Addr())
	b.expect("Write /help")
	require.NoError(t, b.conn.Close())

	a.sendf("/myroom")
	a.expect("Your room is default")
}

func TestServer_StopNotifiesClients(t *testing.T) {
	srv := NewServer("127.0.0.1:0", 128, nil)
	require.NoError(t, srv.Start())

	a := dialServer(t, srv.Addr())
	a.expect("Write /help")

	srv.Stop()
	a.expect("quit")
}
