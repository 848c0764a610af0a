package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/control"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/restapi"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func signToken(t *testing.T, userID string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

type harness struct {
	db      *store.DB
	account *Account
	mgr     *realtime.Manager
	machine *status.Machine
	client  *control.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Use a short path to stay under the Unix socket length limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	lk, err := lock.Acquire(filepath.Join(tmpDir, "daemon.lock"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lk.Release() })

	db, err := store.Open(filepath.Join(tmpDir, "chatsync.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// Nothing listens on port 1: connects keep retrying and REST calls fail.
	cfg := config.Default()
	cfg.API.BaseURL = "http://127.0.0.1:1"
	cfg.Realtime.URL = "ws://127.0.0.1:1/ws"
	cfg.API.Timeout.Duration = time.Second

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	cur := &auth.Current{}
	api, err := restapi.New(cfg.API.BaseURL, cur.Token, cfg.API.Timeout.Duration)
	if err != nil {
		t.Fatal(err)
	}
	mgr := provideRealtime(cfg, cur, machine, logger)
	state := provideChatState(cfg, mgr, api, b, logger)
	acct := NewAccount(db, cur, state, mgr, cfg, logger)
	t.Cleanup(mgr.Disconnect)

	svc := control.NewService(control.Deps{
		Session:   "test",
		Machine:   machine,
		Store:     state,
		Account:   acct,
		Presence:  presence.NewQuerier(state, mgr, time.Second),
		Directory: directory.New(api, db, logger),
		Users:     db,
		Bus:       b,
		Logger:    logger,
	})

	socketPath := filepath.Join(tmpDir, "d.sock")
	grpcSrv := grpc.NewServer()
	control.RegisterControlServer(grpcSrv, svc)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = grpcSrv.Serve(listener) }()
	t.Cleanup(grpcSrv.Stop)

	client, err := control.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return &harness{db: db, account: acct, mgr: mgr, machine: machine, client: client}
}

func TestDaemonLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.client.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if resp.Session != "test" {
		t.Errorf("session = %q, want %q", resp.Session, "test")
	}
	if resp.State != string(status.Absent) {
		t.Errorf("state = %v, want ABSENT", resp.State)
	}
	if resp.UserID != "" {
		t.Errorf("user = %q, want signed out", resp.UserID)
	}

	login, err := h.client.Login(ctx, signToken(t, "u1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Login error = %v", err)
	}
	if login.UserID != "u1" {
		t.Errorf("login user = %q, want u1", login.UserID)
	}
	if h.mgr.Conn() == nil || h.mgr.Conn().UserID() != "u1" {
		t.Fatal("expected a connection handle for u1")
	}
	if h.machine.Current() == status.Absent {
		t.Error("state should leave ABSENT after login")
	}

	creds, err := h.db.LoadCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if creds == nil || creds.UserID != "u1" || creds.WSURL != "ws://127.0.0.1:1/ws" {
		t.Fatalf("stored credentials = %+v", creds)
	}

	convs, err := h.client.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations error = %v", err)
	}
	if len(convs.Conversations) != 0 {
		t.Errorf("expected 0 conversations, got %d", len(convs.Conversations))
	}

	if err := h.client.Logout(ctx); err != nil {
		t.Fatalf("Logout error = %v", err)
	}
	if h.mgr.Conn() != nil {
		t.Error("connection handle should be cleared on logout")
	}
	if h.machine.Current() != status.Absent {
		t.Errorf("state = %v after logout, want ABSENT", h.machine.Current())
	}
	if creds, _ := h.db.LoadCredentials(); creds != nil {
		t.Error("credentials should be cleared on logout")
	}
}

func TestLoginRejectsExpiredToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Login(context.Background(), signToken(t, "u1", time.Now().Add(-time.Hour)))
	if err == nil {
		t.Fatal("expected login with an expired token to fail")
	}
	if h.mgr.Conn() != nil {
		t.Error("no connection should be opened for a rejected token")
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.account.Restore(ctx); err != nil {
		t.Fatalf("Restore without credentials error = %v", err)
	}
	if h.mgr.Conn() != nil {
		t.Error("restore without credentials should not connect")
	}

	tok := signToken(t, "u7", time.Now().Add(time.Hour))
	if err := h.db.SaveCredentials(&store.Credentials{Token: tok, UserID: "u7"}); err != nil {
		t.Fatal(err)
	}
	if err := h.account.Restore(ctx); err != nil {
		t.Fatalf("Restore error = %v", err)
	}
	if got := h.account.Identity().UserID; got != "u7" {
		t.Errorf("identity = %q, want u7", got)
	}
	if h.mgr.Conn() == nil {
		t.Error("restore should connect")
	}
}

func TestRestoreDiscardsExpiredCredentials(t *testing.T) {
	h := newHarness(t)

	tok := signToken(t, "u1", time.Now().Add(-time.Minute))
	if err := h.db.SaveCredentials(&store.Credentials{Token: tok, UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := h.account.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if creds, _ := h.db.LoadCredentials(); creds != nil {
		t.Error("expired credentials should be cleared")
	}
	if h.account.Identity().UserID != "" {
		t.Error("expected no identity")
	}
}

func TestSwitchingUserResetsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.account.Login(ctx, signToken(t, "u1", time.Now().Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	h.account.state.UpsertConversation(chat.Conversation{ID: "c1", Kind: chat.Direct, Participants: []string{"u1", "u9"}})
	if _, err := h.account.Login(ctx, signToken(t, "u2", time.Now().Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if n := len(h.account.state.Conversations()); n != 0 {
		t.Errorf("conversations after switching user = %d, want 0", n)
	}
	if got := h.mgr.Conn().UserID(); got != "u2" {
		t.Errorf("connection user = %q, want u2", got)
	}
}

func TestModuleGraph(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{SessionName: "test"})); err != nil {
		t.Fatalf("invalid dependency graph: %v", err)
	}
}

var _ chatstate.Emitter = (*realtime.Manager)(nil)
