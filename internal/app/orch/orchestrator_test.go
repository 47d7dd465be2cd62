package orch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/core/mocks"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/dkeye/lanhub/internal/protocol"
	"go.uber.org/mock/gomock"
)

// captureConn records every frame queued for one session.
type captureConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *captureConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *captureConn) Send(_ context.Context, f core.Frame) error { return c.TrySend(f) }
func (c *captureConn) Close()                                     {}

// drain decodes and forgets everything received so far.
func (c *captureConn) drain(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	out := make([]protocol.Message, 0, len(frames))
	for _, f := range frames {
		m, err := protocol.DecodePayload(protocol.Payload(f))
		if err != nil {
			t.Fatalf("decode queued frame: %v", err)
		}
		out = append(out, m)
	}
	return out
}

var testClock = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newTestOrch() *Orchestrator {
	return &Orchestrator{
		Registry:      app.NewRegistry(),
		Presenter:     app.NewPresenter(),
		Files:         app.NewFileStore(1<<20, 4<<20),
		History:       app.NewHistory(10),
		Policy:        app.SimplePolicy{},
		MaxChatLength: 64,
		Now:           func() time.Time { return testClock },
	}
}

func join(t *testing.T, o *Orchestrator, name string) (core.SessionID, *captureConn) {
	t.Helper()
	c := &captureConn{}
	sid, err := o.Join(context.Background(), c, func() {}, name)
	if err != nil {
		t.Fatalf("Join(%q): %v", name, err)
	}
	return sid, c
}

func only[T protocol.Message](t *testing.T, msgs []protocol.Message) T {
	t.Helper()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %#v", len(msgs), msgs)
	}
	m, ok := msgs[0].(T)
	if !ok {
		t.Fatalf("got %T, want %T", msgs[0], *new(T))
	}
	return m
}

func TestJoinAckAndUserJoined(t *testing.T) {
	o := newTestOrch()
	alice, ac := join(t, o, "Alice")

	ack := only[*protocol.JoinAck](t, ac.drain(t))
	if ack.SessionID != string(alice) || len(ack.Roster) != 1 || ack.Roster[0].Username != "Alice" {
		t.Fatalf("alice ack = %+v", ack)
	}

	bob, bc := join(t, o, "Bob")
	ack = only[*protocol.JoinAck](t, bc.drain(t))
	if len(ack.Roster) != 2 || ack.Roster[0].SessionID != string(alice) || ack.Roster[1].SessionID != string(bob) {
		t.Errorf("bob roster = %+v", ack.Roster)
	}
	uj := only[*protocol.UserJoined](t, ac.drain(t))
	if uj.SessionID != string(bob) || uj.Username != "Bob" {
		t.Errorf("UserJoined = %+v", uj)
	}
}

func TestJoinRejectsBadUsername(t *testing.T) {
	o := newTestOrch()
	for _, name := range []string{"", "   ", strings.Repeat("x", domain.MaxUsernameLen+1)} {
		c := &captureConn{}
		_, err := o.Join(context.Background(), c, nil, name)
		if err == nil {
			t.Fatalf("Join(%q) succeeded", name)
		}
		if !errors.Is(err, domain.ErrUsernameEmpty) && !errors.Is(err, domain.ErrUsernameTooLong) {
			t.Errorf("Join(%q) err = %v", name, err)
		}
		only[*protocol.Error](t, c.drain(t))
	}
	if o.Registry.Count() != 0 {
		t.Errorf("registry has %d sessions after rejected joins", o.Registry.Count())
	}
}

func TestChatReachesEveryoneIncludingSender(t *testing.T) {
	o := newTestOrch()
	alice, ac := join(t, o, "Alice")
	_, bc := join(t, o, "Bob")
	ac.drain(t)
	bc.drain(t)

	o.Chat(context.Background(), alice, "hi")
	for name, c := range map[string]*captureConn{"alice": ac, "bob": bc} {
		cm := only[*protocol.ChatMessage](t, c.drain(t))
		if cm.SenderID != string(alice) || cm.Username != "Alice" || cm.Body != "hi" || !cm.Timestamp.Equal(testClock) {
			t.Errorf("%s got %+v", name, cm)
		}
	}

	o.Chat(context.Background(), alice, "  ")
	if n := len(bc.drain(t)); n != 0 {
		t.Errorf("blank chat delivered %d messages", n)
	}

	o.Chat(context.Background(), alice, strings.Repeat("a", 65))
	only[*protocol.Error](t, ac.drain(t))
	if n := len(bc.drain(t)); n != 0 {
		t.Errorf("oversized chat delivered to bob")
	}
}

func TestPresenterFlow(t *testing.T) {
	o := newTestOrch()
	ctx := context.Background()
	alice, ac := join(t, o, "Alice")
	bob, bc := join(t, o, "Bob")
	ac.drain(t)
	bc.drain(t)

	o.RequestPresent(ctx, alice)
	msgs := ac.drain(t)
	if len(msgs) != 2 {
		t.Fatalf("alice got %d messages, want PresentResult and PresenterChanged", len(msgs))
	}
	if res, ok := msgs[0].(*protocol.PresentResult); !ok || !res.Granted {
		t.Errorf("alice result = %#v", msgs[0])
	}
	pc := only[*protocol.PresenterChanged](t, bc.drain(t))
	if pc.PresenterID != string(alice) {
		t.Errorf("PresenterChanged = %+v", pc)
	}

	o.RequestPresent(ctx, bob)
	res := only[*protocol.PresentResult](t, bc.drain(t))
	if res.Granted || res.Reason != "presenter busy" || res.PresenterID != string(alice) {
		t.Errorf("bob result = %+v", res)
	}
	if n := len(ac.drain(t)); n != 0 {
		t.Errorf("rejected request reached alice: %d messages", n)
	}

	o.ScreenFrame(bob, []byte("nope"))
	if n := len(ac.drain(t)) + len(bc.drain(t)); n != 0 {
		t.Errorf("non-presenter frame delivered %d messages", n)
	}

	frame := []byte{0xff, 0xd8, 0x00, 0x01}
	o.ScreenFrame(alice, frame)
	sb := only[*protocol.ScreenBroadcast](t, bc.drain(t))
	if sb.SenderID != string(alice) || !bytes.Equal(sb.Data, frame) {
		t.Errorf("ScreenBroadcast = %+v", sb)
	}
	if n := len(ac.drain(t)); n != 0 {
		t.Errorf("presenter received own frame")
	}

	o.ReleasePresent(bob)
	if n := len(bc.drain(t)); n != 0 {
		t.Errorf("release by non-holder broadcast %d messages", n)
	}
	o.ReleasePresent(alice)
	if pc := only[*protocol.PresenterChanged](t, bc.drain(t)); pc.PresenterID != "" {
		t.Errorf("release broadcast = %+v", pc)
	}
}

func TestDisconnectReleasesPresenterOnce(t *testing.T) {
	o := newTestOrch()
	alice, ac := join(t, o, "Alice")
	bob, bc := join(t, o, "Bob")
	o.RequestPresent(context.Background(), alice)
	ac.drain(t)
	bc.drain(t)

	o.Disconnect(alice)
	msgs := bc.drain(t)
	if len(msgs) != 2 {
		t.Fatalf("bob got %d messages, want PresenterChanged and UserLeft", len(msgs))
	}
	if pc, ok := msgs[0].(*protocol.PresenterChanged); !ok || pc.PresenterID != "" {
		t.Errorf("first = %#v", msgs[0])
	}
	if ul, ok := msgs[1].(*protocol.UserLeft); !ok || ul.SessionID != string(alice) || ul.Username != "Alice" {
		t.Errorf("second = %#v", msgs[1])
	}

	o.Disconnect(alice)
	if n := len(bc.drain(t)); n != 0 {
		t.Errorf("second disconnect broadcast %d messages", n)
	}
	if _, ok := o.Presenter.Current(); ok {
		t.Error("presenter still held")
	}
	if all := o.Registry.All(); len(all) != 1 || all[0].SID != bob {
		t.Errorf("registry = %+v", all)
	}
}

func TestUploadAndDownload(t *testing.T) {
	o := newTestOrch()
	ctx := context.Background()
	alice, ac := join(t, o, "Alice")
	bob, bc := join(t, o, "Bob")
	ac.drain(t)
	bc.drain(t)

	data := []byte("report body\x00\x01")
	o.Upload(ctx, alice, "report.bin", int64(len(data)), data)
	var fileID string
	for name, c := range map[string]*captureConn{"alice": ac, "bob": bc} {
		fa := only[*protocol.FileAvailable](t, c.drain(t))
		if fa.Name != "report.bin" || fa.Size != int64(len(data)) || fa.UploaderID != string(alice) || fa.UploaderName != "Alice" {
			t.Errorf("%s FileAvailable = %+v", name, fa)
		}
		fileID = fa.FileID
	}

	o.Download(ctx, bob, fileID)
	fd := only[*protocol.FileData](t, bc.drain(t))
	if fd.FileID != fileID || !bytes.Equal(fd.Data, data) {
		t.Errorf("FileData = %+v", fd)
	}
	if n := len(ac.drain(t)); n != 0 {
		t.Errorf("download reply leaked to alice")
	}

	o.Download(ctx, bob, "missing")
	if e := only[*protocol.Error](t, bc.drain(t)); e.Reason != "file not found" {
		t.Errorf("Error = %+v", e)
	}

	o.Upload(ctx, alice, "big", 2<<20, make([]byte, 2<<20))
	if e := only[*protocol.Error](t, ac.drain(t)); !strings.HasPrefix(e.Reason, "upload failed") {
		t.Errorf("oversize upload error = %+v", e)
	}
	if n := len(bc.drain(t)); n != 0 {
		t.Errorf("failed upload announced to bob")
	}
}

func TestPrivateChat(t *testing.T) {
	o := newTestOrch()
	ctx := context.Background()
	alice, ac := join(t, o, "Alice")
	bob, bc := join(t, o, "Bob")
	_, cc := join(t, o, "Carol")
	ac.drain(t)
	bc.drain(t)
	cc.drain(t)

	o.PrivateChat(ctx, alice, "bob", "psst")
	pm := only[*protocol.PrivateMessage](t, bc.drain(t))
	if pm.From != string(alice) || pm.To != string(bob) || pm.Body != "psst" {
		t.Errorf("bob got %+v", pm)
	}
	echo := only[*protocol.PrivateMessage](t, ac.drain(t))
	if echo.To != string(bob) {
		t.Errorf("echo = %+v", echo)
	}
	if n := len(cc.drain(t)); n != 0 {
		t.Errorf("carol saw private message")
	}

	o.PrivateChat(ctx, alice, string(bob), "by id")
	only[*protocol.PrivateMessage](t, bc.drain(t))
	ac.drain(t)

	o.PrivateChat(ctx, alice, "dave", "hello?")
	only[*protocol.Error](t, ac.drain(t))
	o.PrivateChat(ctx, alice, "ALICE", "me")
	only[*protocol.Error](t, ac.drain(t))
}

func TestLateJoinerGetsState(t *testing.T) {
	o := newTestOrch()
	ctx := context.Background()
	alice, _ := join(t, o, "Alice")
	o.Chat(ctx, alice, "first")
	o.RequestPresent(ctx, alice)
	o.Upload(ctx, alice, "a.txt", 1, []byte("a"))

	_, cc := join(t, o, "Carol")
	ack := only[*protocol.JoinAck](t, cc.drain(t))
	if ack.PresenterID != string(alice) {
		t.Errorf("PresenterID = %q", ack.PresenterID)
	}
	if len(ack.History) != 1 || ack.History[0].Body != "first" {
		t.Errorf("History = %+v", ack.History)
	}
	if len(ack.Files) != 1 || ack.Files[0].Name != "a.txt" {
		t.Errorf("Files = %+v", ack.Files)
	}
}

func TestPing(t *testing.T) {
	o := newTestOrch()
	alice, ac := join(t, o, "Alice")
	ac.drain(t)
	o.Ping(context.Background(), alice)
	only[*protocol.Pong](t, ac.drain(t))
}

func TestBackpressureKicksOnChat(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch()
	alice, _ := join(t, o, "Alice")

	slow := mocks.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(nil)
	slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure).AnyTimes()

	var kicked atomic.Bool
	slowSID, err := o.Join(context.Background(), slow, func() { kicked.Store(true) }, "Slow")
	if err != nil {
		t.Fatal(err)
	}

	o.Chat(context.Background(), alice, "hello")
	if !kicked.Load() {
		t.Fatal("slow session was not kicked")
	}
	// Kick only cancels; the session's own loop performs the teardown.
	if _, ok := o.Registry.Lookup(slowSID); !ok {
		t.Error("kick removed the session synchronously")
	}
}

func TestBackpressureDropsScreenFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch()
	alice, _ := join(t, o, "Alice")
	o.RequestPresent(context.Background(), alice)

	slow := mocks.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(nil)
	slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure).AnyTimes()

	var kicked atomic.Bool
	if _, err := o.Join(context.Background(), slow, func() { kicked.Store(true) }, "Viewer"); err != nil {
		t.Fatal(err)
	}

	o.ScreenFrame(alice, []byte("frame"))
	if kicked.Load() {
		t.Error("slow viewer kicked for a screen frame")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	o := newTestOrch()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &captureConn{}
			sid, err := o.Join(context.Background(), c, func() {}, "user")
			if err != nil {
				t.Error(err)
				return
			}
			o.Chat(context.Background(), sid, "x")
			if i%2 == 0 {
				o.Disconnect(sid)
				o.Disconnect(sid)
			}
		}()
	}
	wg.Wait()
	if got := o.Registry.Count(); got != 10 {
		t.Errorf("Count = %d, want 10", got)
	}
}
