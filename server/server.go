// Package server implements the TCP front end of spec §4.6/§6: a listening
// socket, a detached handler goroutine per connection, and the first-byte
// dispatch to the read, subscribe, and status engines.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/internal/options"
	"github.com/dls-controls/fa-archiver/proto"
	"github.com/dls-controls/fa-archiver/query"
	"github.com/dls-controls/fa-archiver/source"
	"github.com/dls-controls/fa-archiver/subscribe"
	"go.uber.org/zap"
)

// Server is the socket-accept thread plus per-connection handler of spec
// §5 thread list items 4 and 5. One handler goroutine is spawned per
// accepted connection and runs detached; the server itself only tracks
// active subscriptions so an orderly shutdown can stop them.
type Server struct {
	ctx            *archive.Context
	faEntryCount   int
	query          *query.Engine
	sub            *subscribe.Engine
	subDecimated   *subscribe.Engine // nil if no decimated buffer is configured
	src            source.Source     // nil if no live frame source is attached
	liveDecimation int
	logger         *zap.Logger

	mu       sync.Mutex
	nextID   int
	sessions map[int]*subscribe.Session
	clients  map[int]clientInfo
}

// New builds a Server. subDecimated and src may be nil (archive-only
// deployments with no live decimated buffer or frame source).
func New(ctx *archive.Context, faEntryCount int, q *query.Engine, sub, subDecimated *subscribe.Engine, src source.Source, liveDecimation int, opts ...options.Option[*Server]) *Server {
	s := &Server{
		ctx:            ctx,
		faEntryCount:   faEntryCount,
		query:          q,
		sub:            sub,
		subDecimated:   subDecimated,
		src:            src,
		liveDecimation: liveDecimation,
		logger:         zap.NewNop(),
		sessions:       make(map[int]*subscribe.Session),
		clients:        make(map[int]clientInfo),
	}
	_ = options.Apply(s, opts...) // NoError options only; Server has no fallible configuration
	return s
}

// Serve accepts connections on ln until it is closed, handling each on its
// own goroutine (spec §5, "one handler thread per accepted connection;
// each is detached").
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", zap.Error(err))
			return err
		}
		go s.handle(conn)
	}
}

// Shutdown stops every active subscription so their handler goroutines
// return, then lets the caller close the listener (spec §5 cancellation:
// "shutdown terminates server (closes listening socket)...").
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Stop()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		s.logger.Debug("connection closed before request line", zap.Error(err), zap.String("remote", conn.RemoteAddr().String()))
		return
	}
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return
	}

	switch line[0] {
	case 'C':
		s.handleStatus(conn, line[1:])
	case 'R':
		s.handleRead(conn, line[1:])
	case 'S':
		s.handleSubscribe(conn, line[1:])
	default:
		io.WriteString(conn, errs.ErrBadRequest.Error()+"\n")
	}
}

// registerClient records a new subscription session for the "I" status
// command and for Shutdown to stop it, returning the id to unregister with.
func (s *Server) registerClient(sess *subscribe.Session, mask []int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.sessions[id] = sess
	s.clients[id] = clientInfo{mask: mask}
	return id
}

func (s *Server) unregisterClient(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.clients, id)
}

func (s *Server) handleRead(conn net.Conn, rest string) {
	req, err := proto.ParseReadRequest(rest, s.faEntryCount)
	if err != nil {
		io.WriteString(conn, err.Error()+"\n")
		return
	}
	s.query.Execute(req, conn)
}

func (s *Server) handleSubscribe(conn net.Conn, rest string) {
	req, err := proto.ParseSubscribeRequest(rest, s.faEntryCount)
	if err != nil {
		io.WriteString(conn, err.Error()+"\n")
		return
	}

	engine := s.sub
	if req.Options.Decimated {
		engine = s.subDecimated
	}
	if engine == nil {
		io.WriteString(conn, errs.ErrUnknownSource.Error()+"\n")
		return
	}

	sess := engine.Subscribe()
	id := s.registerClient(sess, req.Mask)
	defer s.unregisterClient(id)
	defer sess.Close()

	var corker subscribe.Corker
	if req.Options.Uncork {
		if tcp, ok := conn.(*net.TCPConn); ok {
			corker = subscribe.NewCorker(tcp)
		}
	}

	sess.Run(conn, corker, req)
}
