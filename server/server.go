// Package server is the thin, line-oriented TCP frontend spec.md scopes out
// in detail (§1 "RPC daemon, session layer... transport") but SPEC_FULL.md
// keeps a minimal version of as ambient surface: accept connections, read
// command lines, match them against a logged-in player's verbs, and submit
// a task per line. Grounded on the teacher's server/server.go connection
// loop, generalized to drive loom's task.Scheduler instead of barn's.
package server

import (
	"bufio"
	"net"
	"sync"

	"loom/builtin"
	"loom/logging"
	"loom/task"
	"loom/value"
	"loom/world"
)

// Server owns the listener, the world store, and the task scheduler every
// connection submits command tasks to.
type Server struct {
	store     *world.Store
	builtins  *builtin.Registry
	scheduler *task.Scheduler
	log       *logging.Logger

	mu    sync.Mutex
	conns map[int64]*Connection
	nextID int64
}

// New builds a Server over an already-open world.Store.
func New(store *world.Store, maxWorkers int) *Server {
	reg := builtin.NewRegistry()
	return &Server{
		store:     store,
		builtins:  reg,
		scheduler: task.NewScheduler(store, reg, maxWorkers),
		log:       logging.Named("server"),
		conns:     make(map[int64]*Connection),
	}
}

// Scheduler exposes the underlying task scheduler, for cmd/loomd's `eval`
// subcommand and other non-network entry points.
func (s *Server) Scheduler() *task.Scheduler { return s.scheduler }

// Store exposes the underlying world store.
func (s *Server) Store() *world.Store { return s.store }

// ListenAndServe accepts connections on addr until the listener errors or is
// closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.log.Infow("listening", "addr", addr)

	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		conn := s.newConnection(c)
		go conn.serve()
	}
}

func (s *Server) newConnection(c net.Conn) *Connection {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	conn := &Connection{
		id:     id,
		srv:    s,
		conn:   c,
		reader: bufio.NewReader(c),
		writer: bufio.NewWriter(c),
		player: value.Nothing,
	}
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
	return conn
}

func (s *Server) removeConnection(id int64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Notify implements task.Session for every connection's logged-in player —
// routed by whichever Connection currently has that player id.
func (s *Server) Notify(player value.ObjID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c.player == player {
			c.writeLine(text)
		}
	}
}

// Disconnect implements task.Session.
func (s *Server) Disconnect(player value.ObjID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c.player == player {
			c.conn.Close()
		}
	}
}
