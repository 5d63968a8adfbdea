package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/auth"
	"github.com/vovakirdan/partyhub-server/internal/config"
	"github.com/vovakirdan/partyhub-server/internal/core"
	"github.com/vovakirdan/partyhub-server/internal/game"
	"github.com/vovakirdan/partyhub-server/internal/game/buzzer"
	"github.com/vovakirdan/partyhub-server/internal/hub"
	"github.com/vovakirdan/partyhub-server/internal/proto"
	"github.com/vovakirdan/partyhub-server/internal/store/sqlite"
)

const testSecret = "testsecret"

type testServer struct {
	ts       *httptest.Server
	hub      *hub.Hub
	registry *Registry
	store    *sqlite.SQLiteStore
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	games := game.NewRegistry()
	if err := games.Register(buzzer.New()); err != nil {
		t.Fatalf("register buzzer: %v", err)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := NewRegistry(&logger)
	exec := core.NewExecutor(registry, &logger)
	bridge := game.NewBridge(games, exec, &logger)
	router := core.NewRouter(core.WithCatalog(games.Has))
	h := hub.New(router, exec, bridge, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	server := NewServer(Deps{Hub: h, Registry: registry, Catalog: games, Matches: st}, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, hub: h, registry: registry, store: st}
}

func (s *testServer) wsURL(query string) string {
	u := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	in := proto.Inbound{Event: event}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		in.Data = payload
	}
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// readUntil reads frames until one with the given event arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) frame {
	t.Helper()

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func decodeData[T any](t *testing.T, f frame) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", f.Event, err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t, nil)

	resp, err := srv.ts.Client().Get(srv.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRoomFlow(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := dial(t, ctx, srv.wsURL(""))
	guest := dial(t, ctx, srv.wsURL(""))

	send(t, ctx, host, proto.EventNewRoom, proto.NewRoomData{PlayerName: "Alice"})
	joined := decodeData[proto.JoinSuccess](t, readUntil(t, ctx, host, proto.EventJoinSuccess))
	if role := decodeData[proto.RoleChanged](t, readUntil(t, ctx, host, proto.EventRoleChanged)); role.Role != string(core.RoleHost) {
		t.Fatalf("host role = %q", role.Role)
	}

	send(t, ctx, guest, proto.EventJoinRoom, proto.JoinRoomData{PlayerName: "Bob", RoomID: joined.RoomID})
	readUntil(t, ctx, guest, proto.EventJoinSuccess)
	if none := decodeData[proto.GameSelected](t, readUntil(t, ctx, guest, proto.EventGameSelected)); none.GameName != "" {
		t.Fatalf("new member saw game %q before selection", none.GameName)
	}

	changed := decodeData[proto.PlayersChanged](t, readUntil(t, ctx, host, proto.EventPlayersChanged))
	if strings.Join(changed.PlayerNames, ",") != "Alice,Bob" {
		t.Fatalf("players = %v", changed.PlayerNames)
	}

	send(t, ctx, host, proto.EventSelectGame, proto.SelectGameData{GameName: buzzer.Name})
	selected := decodeData[proto.GameSelected](t, readUntil(t, ctx, guest, proto.EventGameSelected))
	if selected.GameName != buzzer.Name {
		t.Fatalf("selected = %q", selected.GameName)
	}

	guest.Close(websocket.StatusNormalClosure, "bye")
	changed = decodeData[proto.PlayersChanged](t, readUntil(t, ctx, host, proto.EventPlayersChanged))
	if len(changed.PlayerNames) != 1 || changed.PlayerNames[0] != "Alice" {
		t.Fatalf("players after disconnect = %v", changed.PlayerNames)
	}
}

func TestWebSocketJoinUnknownRoom(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.wsURL(""))

	send(t, ctx, conn, proto.EventJoinRoom, proto.JoinRoomData{PlayerName: "Bob", RoomID: 1})
	failed := decodeData[proto.JoinFailed](t, readUntil(t, ctx, conn, proto.EventJoinFailed))
	if failed.Code != core.ErrCodeRoomNotFound || failed.RoomID != 1 {
		t.Fatalf("unexpected joinFailed: %+v", failed)
	}
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.wsURL(""))

	tests := []struct {
		name  string
		write func() error
	}{
		{"malformed json", func() error { return conn.Write(ctx, websocket.MessageText, []byte("{not json")) }},
		{"binary frame", func() error { return conn.Write(ctx, websocket.MessageBinary, []byte(`{"event":"newRoom"}`)) }},
		{"missing event", func() error { return wsjson.Write(ctx, conn, proto.Inbound{}) }},
		{"reserved event", func() error { return wsjson.Write(ctx, conn, proto.Inbound{Event: proto.EventLobbyJoined}) }},
	}
	for _, tt := range tests {
		if err := tt.write(); err != nil {
			t.Fatalf("%s: write: %v", tt.name, err)
		}
		e := decodeData[proto.Error](t, readUntil(t, ctx, conn, proto.EventError))
		if e.Code != core.ErrCodeBadRequest {
			t.Fatalf("%s: code = %q", tt.name, e.Code)
		}
	}

	// The connection survives all of the above.
	send(t, ctx, conn, proto.EventNewRoom, proto.NewRoomData{PlayerName: "Alice"})
	readUntil(t, ctx, conn, proto.EventJoinSuccess)
}

func TestWebSocketRateLimit(t *testing.T) {
	srv := startTestServer(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.wsURL(""))

	for range 3 {
		send(t, ctx, conn, proto.EventLeaveRoom, nil)
	}
	e := decodeData[proto.Error](t, readUntil(t, ctx, conn, proto.EventError))
	if e.Code != core.ErrCodeRateLimited {
		t.Fatalf("code = %q, want rate_limited", e.Code)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.wsURL("protocol=99"))

	e := decodeData[proto.Error](t, readUntil(t, ctx, conn, proto.EventError))
	if e.Code != core.ErrCodeUnsupported {
		t.Fatalf("expected unsupported_version error, got %+v", e)
	}
}

func TestWebSocketJWT(t *testing.T) {
	srv := startTestServer(t, func(cfg *config.Config) {
		cfg.JWTSecret = testSecret
		cfg.JWTRequired = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, query := range []string{"", "token=invalid"} {
		_, resp, err := websocket.Dial(ctx, srv.wsURL(query), nil)
		if err == nil {
			t.Fatalf("%q: dial succeeded without a valid token", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %+v", query, resp)
		}
	}

	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(testSecret), TTL: time.Minute}, "user1", "Alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	conn := dial(t, ctx, srv.wsURL("token="+token))
	send(t, ctx, conn, proto.EventNewRoom, proto.NewRoomData{PlayerName: "Alice"})
	readUntil(t, ctx, conn, proto.EventJoinSuccess)
}

func TestWebSocketFullGame(t *testing.T) {
	srv := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := dial(t, ctx, srv.wsURL(""))
	guest := dial(t, ctx, srv.wsURL(""))

	send(t, ctx, host, proto.EventNewRoom, proto.NewRoomData{PlayerName: "Alice"})
	roomID := decodeData[proto.JoinSuccess](t, readUntil(t, ctx, host, proto.EventJoinSuccess)).RoomID
	send(t, ctx, guest, proto.EventJoinRoom, proto.JoinRoomData{PlayerName: "Bob", RoomID: roomID})
	readUntil(t, ctx, guest, proto.EventJoinSuccess)

	send(t, ctx, host, proto.EventSelectGame, proto.SelectGameData{GameName: buzzer.Name})
	send(t, ctx, host, proto.EventStartGame, map[string]any{"settings": buzzer.Settings{Rounds: 1}})
	readUntil(t, ctx, guest, proto.EventGameStarted)
	send(t, ctx, host, proto.EventGameLoaded, nil)
	send(t, ctx, guest, proto.EventGameLoaded, nil)

	readUntil(t, ctx, guest, buzzer.EventRoundOpen)
	send(t, ctx, guest, buzzer.EventBuzz, nil)

	final := decodeData[buzzer.FinalScores](t, readUntil(t, ctx, host, buzzer.EventFinalScores))
	if len(final.Winners) != 1 || final.Winners[0] != "Bob" {
		t.Fatalf("winners = %v", final.Winners)
	}
	readUntil(t, ctx, host, proto.EventGameEnded)

	resp, err := srv.ts.Client().Get(srv.ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	defer resp.Body.Close()
	var rooms []core.RoomSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Phase != core.RoomLobby.String() {
		t.Fatalf("rooms = %+v", rooms)
	}
}
