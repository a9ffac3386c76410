package chat

import "bufio"

// StartOutboundWriter drains the client's Out channel onto the connection,
// one newline-terminated line per entry. It exits when Out is closed by the
// registry or when a write fails; a broken pipe here never touches other
// sessions. writerDone is closed on exit so shutdown can close the conn only
// after pending lines have been flushed.
func StartOutboundWriter(c *Client) {
	c.writerDone = make(chan struct{})
	go func() {
		defer close(c.writerDone)
		w := bufio.NewWriter(c.Conn)
		for line := range c.Out {
			if _, err := w.WriteString(line + "\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}()
}
