package server

import (
	"bufio"
	"net"
	"strings"

	"loom/task"
	"loom/value"
)

// Connection is one accepted TCP client: a line reader/writer pair plus the
// player identity it's logged in as (value.Nothing before login — the login
// negotiation itself is out of scope per spec §1, so a connection here
// starts as value.Nothing and every line it reads is answered with a
// "login not implemented" notice).
type Connection struct {
	id     int64
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	player value.ObjID
}

func (c *Connection) writeLine(s string) {
	c.writer.WriteString(s)
	c.writer.WriteByte('\n')
	c.writer.Flush()
}

// serve reads command lines until the connection closes, submitting one
// foreground task per line and blocking for it to finish before reading the
// next (spec §4.7 "a task id, ... a session handle"; one task in flight per
// connection at a time, matching the teacher's synchronous command loop).
func (c *Connection) serve() {
	defer c.conn.Close()
	defer c.srv.removeConnection(c.id)

	for {
		line, err := c.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			c.handleLine(line)
		}
		if err != nil {
			c.srv.Notify(c.player, "*** Disconnected ***")
			return
		}
	}
}

func (c *Connection) handleLine(line string) {
	if c.player == value.Nothing {
		c.writeLine("*** login not implemented at this altitude ***")
		return
	}
	cmd, err := ParseCommand(line)
	if err != nil {
		c.writeLine(err.Error())
		return
	}
	m := NewMatcher(c.srv.Store())
	req, err := m.FindCommandVerb(c.player, cmd)
	if err != nil {
		c.writeLine(err.Error())
		return
	}

	sched := c.srv.Scheduler()
	words := task.CommandWords{DObj: req.DObj, DObjStr: req.DObjStr, Prep: req.Prep, IObj: req.IObj, IObjStr: req.IObjStr}
	t := sched.Submit(c.player, task.TaskCommand, c.srv, sched.CommandStarter(
		req.This, c.player, c.player, req.Verb, req.Args, words, c.srv,
	))
	if err := c.srv.Scheduler().RunSync(t); err != nil {
		c.writeLine("*** internal error ***")
		return
	}
	if t.Err != nil {
		c.writeLine(t.Err.String())
	}
}
