package query

import (
	"testing"

	"github.com/queryman/queryman/internal/wire"
)

func TestNewReadsTypeByte(t *testing.T) {
	q := New([]byte{byte(TypeLoginGame), 0x01, 0x02}, 64)
	if q.Type != TypeLoginGame {
		t.Errorf("Type = %v, want LOGIN_GAME", q.Type)
	}
	if q.Request.Position != 1 {
		t.Errorf("Position = %d, want 1", q.Request.Position)
	}
	if q.Status != StatusPending {
		t.Errorf("Status = %v, want pending", q.Status)
	}
}

func TestTypeNames(t *testing.T) {
	cases := map[Type]string{
		TypeLogin:             "LOGIN",
		TypeLoginAdmin:        "LOGIN_ADMIN",
		TypeCreatePlayerlist:  "CREATE_PLAYERLIST",
		TypeGetKillStatistics: "GET_KILL_STATISTICS",
		Type(250):             "UNKNOWN",
		Type(13):              "UNKNOWN",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("Type(%d).String() = %q, want %q", typ, got, want)
		}
	}
}

func TestAcquireDone(t *testing.T) {
	q := New([]byte{0}, 64)

	if !q.Acquire() {
		t.Fatal("Acquire failed on a fresh query")
	}
	if q.Acquire() {
		t.Fatal("Acquire succeeded while already in flight")
	}

	if n := q.Done(); n != 1 {
		t.Errorf("refs after first Done = %d, want 1", n)
	}
	if n := q.Done(); n != 0 {
		t.Errorf("refs after second Done = %d, want 0", n)
	}
}

func TestDonePanicsPastZero(t *testing.T) {
	q := New([]byte{0}, 64)
	q.Done()

	defer func() {
		if recover() == nil {
			t.Error("Done past zero did not panic")
		}
	}()
	q.Done()
}

func TestFinishWakesWaiter(t *testing.T) {
	q := New([]byte{0}, 64)
	q.Acquire()

	done := make(chan struct{})
	go func() {
		<-q.Ready()
		close(done)
	}()

	q.Ok()
	q.Finish()
	<-done

	if q.Refs() != 1 {
		t.Errorf("refs = %d after Finish, want 1 (connection still holds one)", q.Refs())
	}
}

func TestResponseHeaders(t *testing.T) {
	q := New([]byte{0}, 64)

	q.Ok()
	b, err := q.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	// Frame length 1 (status only) + status byte.
	want := []byte{0x01, 0x00, byte(StatusOK)}
	if len(b) != 3 || b[0] != want[0] || b[1] != want[1] || b[2] != want[2] {
		t.Errorf("OK frame = %v, want %v", b, want)
	}

	q.Error(7)
	b, err = q.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if b[2] != byte(StatusError) || b[3] != 7 {
		t.Errorf("ERROR frame = %v, want status 1 code 7", b)
	}

	q.Fail()
	b, err = q.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if b[2] != byte(StatusFailed) {
		t.Errorf("FAILED frame = %v, want status 3", b)
	}
}

func TestFinalizeExtendedLength(t *testing.T) {
	q := New([]byte{0}, 1<<20)
	q.Ok()
	big := make([]byte, 0x10000)
	q.Response.WriteBytes(big)

	b, err := q.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != 0xFF || b[1] != 0xFF {
		t.Fatalf("short length = %#x%#x, want 0xFFFF escape", b[0], b[1])
	}
	r := wire.NewReadBuffer(b)
	r.Read16()
	if size := r.Read32(); int(size) != 1+len(big) {
		t.Errorf("extended length = %d, want %d", size, 1+len(big))
	}
}

func TestFinalizeOverflow(t *testing.T) {
	q := New([]byte{0}, 8)
	q.Ok()
	q.Response.WriteBytes(make([]byte, 32))

	if _, err := q.Finalize(); err == nil {
		t.Error("Finalize succeeded on an overflowed response")
	}
}

func TestRewindRequest(t *testing.T) {
	q := New([]byte{byte(TypeAddBuddy), 0x2A, 0, 0, 0}, 64)

	if v := q.Request.Read32(); v != 0x2A {
		t.Fatalf("Read32 = %d, want 42", v)
	}
	q.RewindRequest()
	if v := q.Request.Read32(); v != 0x2A {
		t.Errorf("Read32 after rewind = %d, want 42", v)
	}
}
