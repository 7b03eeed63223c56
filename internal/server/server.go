// Package server implements the loopback TCP front-end. Trusted local
// clients authenticate with a LOGIN query and then run one query at a
// time; the server frames requests onto the worker queue and writes the
// finalized responses back in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/queryman/queryman/internal/metrics"
	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/wire"
)

// Client application types carried in the LOGIN query.
const (
	AppGame  uint8 = 1
	AppLogin uint8 = 2
	AppWeb   uint8 = 3
)

func appName(app uint8) string {
	switch app {
	case AppGame:
		return "game"
	case AppLogin:
		return "login"
	case AppWeb:
		return "web"
	}
	return "unknown"
}

// Per-application query whitelists. A query outside the client's list is
// answered FAILED without reaching the workers.
var appQueries = map[uint8][]query.Type{
	AppGame: {
		query.TypeLoginGame,
		query.TypeLogoutGame,
		query.TypeSetNamelock,
		query.TypeBanishAccount,
		query.TypeSetNotation,
		query.TypeReportStatement,
		query.TypeBanishIPAddress,
		query.TypeLogCharacterDeath,
		query.TypeAddBuddy,
		query.TypeRemoveBuddy,
		query.TypeDecrementIsOnline,
		query.TypeFinishAuctions,
		query.TypeTransferHouses,
		query.TypeEvictFreeAccounts,
		query.TypeEvictDeletedCharacters,
		query.TypeEvictExGuildleaders,
		query.TypeInsertHouseOwner,
		query.TypeUpdateHouseOwner,
		query.TypeDeleteHouseOwner,
		query.TypeGetHouseOwners,
		query.TypeGetAuctions,
		query.TypeStartAuction,
		query.TypeInsertHouses,
		query.TypeClearIsOnline,
		query.TypeCreatePlayerlist,
		query.TypeLogKilledCreatures,
		query.TypeLoadPlayers,
		query.TypeExcludeFromAuctions,
		query.TypeCancelHouseTransfer,
		query.TypeLoadWorldConfig,
	},
	AppLogin: {
		query.TypeLoginAccount,
	},
	AppWeb: {
		query.TypeCheckAccountPassword,
		query.TypeCreateAccount,
		query.TypeCreateCharacter,
		query.TypeGetAccountSummary,
		query.TypeGetCharacterProfile,
		query.TypeGetWorlds,
		query.TypeGetOnlineCharacters,
		query.TypeGetKillStatistics,
	},
}

var appAllowed = func() map[uint8]map[query.Type]bool {
	m := make(map[uint8]map[query.Type]bool, len(appQueries))
	for app, types := range appQueries {
		m[app] = make(map[query.Type]bool, len(types))
		for _, t := range types {
			m[app][t] = true
		}
	}
	return m
}()

// Config wires a server together.
type Config struct {
	Port           int
	Password       string
	BufferSize     int
	MaxConnections int
	IdleTimeout    time.Duration
	Queue          *query.Queue
	Metrics        *metrics.Collector
	Log            *slog.Logger
}

// Server accepts loopback connections and feeds the worker queue.
type Server struct {
	cfg Config

	mu          sync.Mutex
	password    string
	idleTimeout time.Duration
	conns       map[net.Conn]struct{}

	listener net.Listener
	slots    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a server. Start brings up the listener.
func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		password:    cfg.Password,
		idleTimeout: cfg.IdleTimeout,
		conns:       make(map[net.Conn]struct{}),
		slots:       make(chan struct{}, cfg.MaxConnections),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start binds the loopback listener and launches the accept loop.
func (s *Server) Start() error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = l
	s.cfg.Log.Info("server listening", "addr", l.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to exit.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// UpdatePassword swaps the client password. Applies to new connections.
func (s *Server) UpdatePassword(password string) {
	s.mu.Lock()
	s.password = password
	s.mu.Unlock()
}

// UpdateIdleTimeout swaps the idle timeout. Applies from each
// connection's next read.
func (s *Server) UpdateIdleTimeout(d time.Duration) {
	s.mu.Lock()
	s.idleTimeout = d
	s.mu.Unlock()
}

func (s *Server) currentPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password
}

func (s *Server) currentIdleTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleTimeout
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				s.cfg.Log.Error("accept failed", "err", err)
			}
			return
		}

		// Only local clients are trusted.
		if !isLoopback(conn.RemoteAddr()) {
			s.cfg.Log.Warn("rejecting non-loopback connection",
				"remote", conn.RemoteAddr().String())
			s.cfg.Metrics.ConnectionRejected("not_loopback")
			conn.Close()
			continue
		}

		select {
		case s.slots <- struct{}{}:
		default:
			s.cfg.Log.Warn("rejecting connection, all slots taken",
				"remote", conn.RemoteAddr().String())
			s.cfg.Metrics.ConnectionRejected("max_connections")
			conn.Close()
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.cfg.Metrics.ConnectionOpened()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}

// connection is the per-client state behind one TCP connection.
type connection struct {
	srv     *Server
	conn    net.Conn
	log     *slog.Logger
	app     uint8
	worldID int
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		<-s.slots
		s.cfg.Metrics.ConnectionClosed()
	}()

	c := &connection{
		srv:  s,
		conn: conn,
		log:  s.cfg.Log.With("remote", conn.RemoteAddr().String()),
	}
	if !c.handshake() {
		return
	}
	c.log = c.log.With("app", appName(c.app))
	c.log.Debug("client authenticated")
	c.serve()
}

// readFrame reads one request frame under the idle deadline.
func (c *connection) readFrame() ([]byte, error) {
	if d := c.srv.currentIdleTimeout(); d > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
			return nil, err
		}
	}
	return wire.ReadFrame(c.conn, c.srv.cfg.BufferSize)
}

func (c *connection) write(response []byte) bool {
	if _, err := c.conn.Write(response); err != nil {
		c.log.Warn("writing response failed", "err", err)
		return false
	}
	return true
}

// writeStatus finalizes and writes the query's response.
func (c *connection) writeStatus(q *query.Query) bool {
	response, err := q.Finalize()
	if err != nil {
		c.log.Error("finalizing response failed",
			"query", q.Type.String(), "err", err)
		return false
	}
	return c.write(response)
}

// handshake authenticates the client. The first frame must be a LOGIN
// query carrying the application type and password; game clients also
// name their world, which is resolved through the worker path. Anything
// else closes the connection, without a response unless the query really
// was a LOGIN.
func (c *connection) handshake() bool {
	payload, err := c.readFrame()
	if err != nil {
		c.log.Debug("closing before login", "err", err)
		return false
	}

	q := query.New(payload, c.srv.cfg.BufferSize)
	if q.Type != query.TypeLogin {
		c.log.Warn("first query was not LOGIN", "query", q.Type.String())
		return false
	}

	app := q.Request.Read8()
	password := q.Request.ReadString()

	if password != c.srv.currentPassword() {
		c.log.Warn("login with wrong password")
		q.Fail()
		c.writeStatus(q)
		return false
	}

	switch app {
	case AppGame:
		worldName := q.Request.ReadString()
		rq := c.resolveWorld(worldName)
		if rq == nil {
			return false
		}
		wrote := c.writeStatus(rq)
		rq.Done()
		if !wrote || rq.Status != query.StatusOK {
			c.log.Warn("world resolution failed", "world", worldName)
			return false
		}
		c.worldID = rq.WorldID
	case AppLogin, AppWeb:
		q.Ok()
		if !c.writeStatus(q) {
			return false
		}
	default:
		c.log.Warn("login with unknown application type", "app", app)
		q.Fail()
		c.writeStatus(q)
		return false
	}

	c.app = app
	return true
}

// resolveWorld runs an INTERNAL_RESOLVE_WORLD query through the normal
// worker path and returns it completed.
func (c *connection) resolveWorld(worldName string) *query.Query {
	w := wire.NewWriteBuffer(3 + len(worldName))
	w.Write8(uint8(query.TypeInternalResolveWorld))
	w.WriteString(worldName)
	payload := w.Bytes()
	if payload == nil {
		return nil
	}
	rq := query.New(payload, c.srv.cfg.BufferSize)
	if !c.submit(rq) {
		return nil
	}
	return rq
}

// submit hands the query to the workers and waits for the response.
func (c *connection) submit(q *query.Query) bool {
	if !q.Acquire() {
		c.log.Error("query already in flight", "query", q.Type.String())
		return false
	}
	c.srv.cfg.Queue.Enqueue(q)
	select {
	case <-q.Ready():
		return true
	case <-c.srv.ctx.Done():
		// Shutdown drains the queue and completes every query.
		<-q.Ready()
		return true
	}
}

// serve runs the authenticated query loop: one query in flight at a time,
// responses written in order.
func (c *connection) serve() {
	allowed := appAllowed[c.app]
	for {
		payload, err := c.readFrame()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.log.Debug("connection done", "err", err)
			}
			return
		}

		q := query.New(payload, c.srv.cfg.BufferSize)
		if !allowed[q.Type] {
			c.log.Warn("query not allowed for this client",
				"query", q.Type.String())
			q.Fail()
			if !c.writeStatus(q) {
				return
			}
			continue
		}

		q.WorldID = c.worldID
		if !c.submit(q) {
			return
		}
		wrote := c.writeStatus(q)
		q.Done()
		if !wrote {
			return
		}
	}
}
