package chat

import (
	"log/slog"
	"net"
)

// Server owns the listener, the registry goroutine and one session goroutine
// per accepted connection.
type Server struct {
	addr     string
	logger   *slog.Logger
	reg      *Registry
	listener net.Listener
}

func NewServer(addr string, eventBuffer int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		logger: logger,
		reg:    NewRegistry(eventBuffer, logger),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.reg.Run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr reports the bound listen address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and stops the registry, which sends the quit
// notice to every connected client and closes their conns.
func (s *Server) Stop() {
	s.logger.Info("shutting down")

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.reg.Stop()
	s.reg.Wait()

	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed, normal shutdown path.
			return
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())

		c := &Client{
			ID:   NewSessionID(),
			Conn: conn,
			Out:  make(chan string, 32),
		}
		go HandleSession(c, s.reg)
	}
}
