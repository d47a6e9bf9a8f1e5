// Package ipc is the local control socket: newline delimited JSON over a
// unix socket, used to push lines of text and to stream replies back.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
)

const DefaultSocketPath = "/tmp/hermes-text.sock"

const (
	CmdPush   = "push"
	CmdListen = "listen"
)

type ControlMessage struct {
	Cmd    string `json:"cmd"`
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text,omitempty"`
}

type Reply struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// PushFunc hands a line to the daemon. Its error is reported to the client.
type PushFunc func(sender, text string) error

type listener struct {
	recipient string
	out       chan Reply
}

type Server struct {
	log  *log.Logger
	path string
	push PushFunc

	ln        net.Listener
	mu        sync.Mutex
	closed    bool
	conns     map[net.Conn]struct{}
	listeners map[*listener]struct{}
	wg        sync.WaitGroup
}

func NewServer(logger *log.Logger, path string, push PushFunc) *Server {
	if path == "" {
		path = DefaultSocketPath
	}
	return &Server{
		log:       logger,
		path:      path,
		push:      push,
		conns:     make(map[net.Conn]struct{}),
		listeners: make(map[*listener]struct{}),
	}
}

func (s *Server) Start() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	s.log.Info("Control socket ready", "path", s.path)

	s.wg.Add(1)
	go s.accept()
	return nil
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.log.Warn("Accept failed", "err", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	dec := json.NewDecoder(bufio.NewReader(conn))
	enc := json.NewEncoder(conn)

	for {
		var msg ControlMessage
		if err := dec.Decode(&msg); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				_ = enc.Encode(Ack{Error: "bad request"})
			}
			return
		}

		switch msg.Cmd {
		case CmdPush:
			ack := Ack{OK: true}
			if err := s.push(msg.Sender, msg.Text); err != nil {
				ack = Ack{Error: err.Error()}
			}
			if err := enc.Encode(ack); err != nil {
				return
			}
		case CmdListen:
			s.stream(conn, dec, enc, msg.Sender)
			return
		default:
			s.log.Warn("Unknown command", "cmd", msg.Cmd)
			if err := enc.Encode(Ack{Error: fmt.Sprintf("unknown command %q", msg.Cmd)}); err != nil {
				return
			}
		}
	}
}

// stream writes replies to conn until the client goes away.
func (s *Server) stream(conn net.Conn, dec *json.Decoder, enc *json.Encoder, recipient string) {
	l := &listener{recipient: recipient, out: make(chan Reply, 16)}

	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	}()

	if err := enc.Encode(Ack{OK: true}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard json.RawMessage
		for dec.Decode(&discard) == nil {
		}
	}()

	for {
		select {
		case r := <-l.out:
			if err := enc.Encode(r); err != nil {
				conn.Close()
				<-gone
				return
			}
		case <-gone:
			return
		}
	}
}

// Broadcast hands r to every listener interested in its recipient. Slow
// listeners lose replies rather than stall the caller.
func (s *Server) Broadcast(r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.listeners {
		if l.recipient != "" && l.recipient != r.Recipient {
			continue
		}
		select {
		case l.out <- r:
		default:
			s.log.Warn("Listener too slow, reply dropped", "recipient", r.Recipient)
		}
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.wg.Wait()
	return err
}

// SendPush pushes one line as sender and waits for the daemon to accept it.
func SendPush(path, sender, text string) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: CmdPush, Sender: sender, Text: text}); err != nil {
		return err
	}
	return readAck(json.NewDecoder(conn))
}

func readAck(dec *json.Decoder) error {
	var ack Ack
	if err := dec.Decode(&ack); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if !ack.OK {
		return errors.New(ack.Error)
	}
	return nil
}

// Stream is an open listen connection.
type Stream struct {
	conn net.Conn
	dec  *json.Decoder
	stop func() bool
}

// Subscribe opens a listen connection for recipient, or for everyone when
// recipient is empty. It returns once the daemon has registered it.
func Subscribe(ctx context.Context, path, recipient string) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: CmdListen, Sender: recipient}); err != nil {
		conn.Close()
		return nil, err
	}
	dec := json.NewDecoder(conn)
	if err := readAck(dec); err != nil {
		conn.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return &Stream{conn: conn, dec: dec, stop: stop}, nil
}

func (st *Stream) Next() (Reply, error) {
	var r Reply
	err := st.dec.Decode(&r)
	return r, err
}

func (st *Stream) Close() error {
	st.stop()
	return st.conn.Close()
}

// Listen calls fn for each reply until fn returns false, ctx ends or the
// daemon goes away.
func Listen(ctx context.Context, path, recipient string, fn func(Reply) bool) error {
	st, err := Subscribe(ctx, path, recipient)
	if err != nil {
		return err
	}
	defer st.Close()

	for {
		r, err := st.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !fn(r) {
			return nil
		}
	}
}
