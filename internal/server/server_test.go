package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/queryman/queryman/internal/config"
	"github.com/queryman/queryman/internal/database"
	"github.com/queryman/queryman/internal/hostcache"
	"github.com/queryman/queryman/internal/metrics"
	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/wire"
	"github.com/queryman/queryman/internal/worker"
)

const testBufferSize = 1 << 16

func startServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	ctx := context.Background()

	dbCfg := config.DatabaseConfig{Driver: config.DriverSQLite}
	dbCfg.SQLite.File = filepath.Join(t.TempDir(), "game.db")
	dbCfg.SQLite.MaxCachedStatements = 64

	sess, err := database.Open(dbCfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.CheckSchema(ctx, "../../sqlite"); err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	if _, err := sess.ExecContext(ctx, `
INSERT INTO Worlds (WorldID, Name, Type, RebootTime, Host, Port, MaxPlayers,
	PremiumPlayerBuffer, MaxNewbies, PremiumNewbieBuffer)
VALUES (1, 'Zanera', 0, 5, 'game.example', 7172, 1000, 50, 300, 100)`); err != nil {
		t.Fatal(err)
	}
	sess.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := query.NewQueue(64)
	collector := metrics.New()
	pool := worker.NewPool(worker.Config{
		Workers:     1,
		MaxAttempts: 3,
		Database:    dbCfg,
		Queue:       queue,
		Hosts: hostcache.New(4, time.Hour, func(string) (uint32, error) {
			return 0x7F000001, nil
		}),
		Metrics: collector,
		Log:     log,
	})
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("pool.Start: %v", err)
	}
	t.Cleanup(pool.Stop)

	cfg := Config{
		Port:           0,
		Password:       "hunter2",
		BufferSize:     testBufferSize,
		MaxConnections: 8,
		IdleTimeout:    5 * time.Second,
		Queue:          queue,
		Metrics:        collector,
		Log:            log,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, build func(*wire.WriteBuffer)) {
	t.Helper()
	w := wire.NewWriteBuffer(testBufferSize)
	build(w)
	payload := w.Bytes()
	if payload == nil {
		t.Fatal("request build overflowed")
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

// recv reads one response frame and returns the status byte and a reader
// over the body.
func recv(t *testing.T, conn net.Conn) (query.Status, *wire.ReadBuffer) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	payload, err := wire.ReadFrame(conn, testBufferSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	r := wire.NewReadBuffer(payload)
	return query.Status(r.Read8()), r
}

// wantClosed asserts that the server closed the connection without
// sending anything further.
func wantClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("Read = (%d, %v), want closed connection", n, err)
	}
}

func login(t *testing.T, conn net.Conn, app uint8, password, world string) {
	t.Helper()
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeLogin))
		w.Write8(app)
		w.WriteString(password)
		if app == AppGame {
			w.WriteString(world)
		}
	})
	status, _ := recv(t, conn)
	if status != query.StatusOK {
		t.Fatalf("login status = %s, want ok", status)
	}
}

func TestGameHandshake(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	login(t, conn, AppGame, "hunter2", "Zanera")

	// The world context sticks: LOAD_WORLD_CONFIG needs no world name.
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeLoadWorldConfig))
	})
	status, r := recv(t, conn)
	if status != query.StatusOK {
		t.Fatalf("status = %s, want ok", status)
	}
	r.Read8() // world type
	if reboot := r.Read8(); reboot != 5 {
		t.Errorf("reboot time = %d, want 5", reboot)
	}
	if addr := r.Read32(); addr != 0x0100007F {
		t.Errorf("address = %#x", addr)
	}
	if port := r.Read16(); port != 7172 {
		t.Errorf("port = %d", port)
	}
}

func TestGameHandshakeUnknownWorld(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeLogin))
		w.Write8(AppGame)
		w.WriteString("hunter2")
		w.WriteString("Atlantis")
	})
	status, _ := recv(t, conn)
	if status != query.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	wantClosed(t, conn)
}

func TestWrongPassword(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeLogin))
		w.Write8(AppWeb)
		w.WriteString("wrong")
	})
	status, _ := recv(t, conn)
	if status != query.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	wantClosed(t, conn)
}

func TestUnknownAppType(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeLogin))
		w.Write8(9)
		w.WriteString("hunter2")
	})
	status, _ := recv(t, conn)
	if status != query.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	wantClosed(t, conn)
}

func TestBusinessQueryBeforeLogin(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	// No LOGIN first: the connection closes without any response.
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeGetWorlds))
	})
	wantClosed(t, conn)
}

func TestWhitelist(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	login(t, conn, AppWeb, "hunter2", "")

	// A game query from a web client is refused, but the connection
	// survives.
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeClearIsOnline))
	})
	status, _ := recv(t, conn)
	if status != query.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}

	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeGetWorlds))
	})
	status, r := recv(t, conn)
	if status != query.StatusOK {
		t.Fatalf("status = %s, want ok", status)
	}
	if count := r.Read8(); count != 1 {
		t.Errorf("world count = %d, want 1", count)
	}
}

func TestWebQueries(t *testing.T) {
	srv := startServer(t, nil)
	conn := dial(t, srv)
	login(t, conn, AppWeb, "hunter2", "")

	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeCreateAccount))
		w.Write32(12345)
		w.WriteString("a@example.com")
		w.WriteString("secret")
	})
	status, _ := recv(t, conn)
	if status != query.StatusOK {
		t.Fatalf("create account status = %s, want ok", status)
	}

	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeCheckAccountPassword))
		w.Write32(12345)
		w.WriteString("secret")
		w.WriteString("127.0.0.1")
	})
	status, _ = recv(t, conn)
	if status != query.StatusOK {
		t.Fatalf("check password status = %s, want ok", status)
	}

	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeCheckAccountPassword))
		w.Write32(12345)
		w.WriteString("wrong")
		w.WriteString("127.0.0.1")
	})
	status, r := recv(t, conn)
	if status != query.StatusError {
		t.Fatalf("wrong password status = %s, want error", status)
	}
	if code := r.Read8(); code != 2 {
		t.Errorf("error code = %d, want 2", code)
	}
}

func TestOversizeFrame(t *testing.T) {
	srv := startServer(t, func(cfg *Config) {
		cfg.BufferSize = 128
	})
	conn := dial(t, srv)
	login(t, conn, AppWeb, "hunter2", "")

	// A frame length beyond the query buffer closes the connection
	// without a response; the body is never read.
	if _, err := conn.Write([]byte{200, 0}); err != nil {
		t.Fatal(err)
	}
	wantClosed(t, conn)
}

func TestMaxConnections(t *testing.T) {
	srv := startServer(t, func(cfg *Config) {
		cfg.MaxConnections = 1
	})
	first := dial(t, srv)
	login(t, first, AppWeb, "hunter2", "")

	second := dial(t, srv)
	wantClosed(t, second)

	// The slot frees up once the first client hangs up.
	first.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		third, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		third.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 1)
		if _, err := third.Read(buf); !errors.Is(err, io.EOF) {
			// Timeout means the server kept the connection: the slot
			// was free.
			third.Close()
			return
		}
		third.Close()
		if time.Now().After(deadline) {
			t.Fatal("slot never freed")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestHotReload(t *testing.T) {
	srv := startServer(t, nil)
	srv.UpdatePassword("swordfish")

	conn := dial(t, srv)
	send(t, conn, func(w *wire.WriteBuffer) {
		w.Write8(uint8(query.TypeLogin))
		w.Write8(AppWeb)
		w.WriteString("hunter2")
	})
	status, _ := recv(t, conn)
	if status != query.StatusFailed {
		t.Fatalf("old password status = %s, want failed", status)
	}

	conn = dial(t, srv)
	login(t, conn, AppWeb, "swordfish", "")
}
