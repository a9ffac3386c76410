package chat

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// HandleSession runs one connection's read loop: register, then read a line,
// parse it and submit the resulting event until quit, end-of-stream or an I/O
// error. Every exit path funnels into a single unregister, which is the only
// Closing trigger for this session.
func HandleSession(c *Client, reg *Registry) {
	defer func() {
		_ = c.Conn.Close()
	}()

	StartOutboundWriter(c)

	reg.Submit(Event{Type: EventRegister, Client: c})
	defer reg.Submit(Event{Type: EventUnregister, Client: c})

	reader := bufio.NewReader(c.Conn)
	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}

		cmd := ParseLine(line)
		switch cmd.Kind {
		case CmdQuit:
			return
		case CmdChat:
			// Empty chat payloads are dropped rather than broadcast.
			if strings.TrimSpace(cmd.Text) == "" {
				continue
			}
			reg.Submit(Event{Type: EventChat, Client: c, Text: cmd.Text})
		case CmdNick:
			reg.Submit(Event{Type: EventNick, Client: c, Name: cmd.Name})
		case CmdJoin:
			reg.Submit(Event{Type: EventJoin, Client: c, Name: cmd.Name})
		case CmdRooms:
			reg.Submit(Event{Type: EventRooms, Client: c})
		case CmdMyRoom:
			reg.Submit(Event{Type: EventMyRoom, Client: c})
		case CmdPersonal:
			reg.Submit(Event{Type: EventPersonal, Client: c, Name: cmd.Name, Text: cmd.Text})
		case CmdHelp:
			reg.Submit(Event{Type: EventHelp, Client: c})
		default:
			reg.Submit(Event{Type: EventInvalid, Client: c})
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}
