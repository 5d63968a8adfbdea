package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/partyhub-server/internal/game/buzzer"
	"github.com/vovakirdan/partyhub-server/internal/proto"
)

// frame mirrors proto.Outbound with undecoded data.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	name string
	conn *websocket.Conn
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run plays one single-round buzzer game with two connections.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "handshake token, when the server requires one")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := fmt.Sprintf("%s?protocol=%d", *addr, proto.ProtocolVersion)
	if *token != "" {
		url += "&token=" + *token
	}

	host, err := dial(ctx, url, "Alice")
	if err != nil {
		return err
	}
	defer host.conn.Close(websocket.StatusNormalClosure, "bye")
	guest, err := dial(ctx, url, "Bob")
	if err != nil {
		return err
	}
	defer guest.conn.Close(websocket.StatusNormalClosure, "bye")

	if err := host.send(ctx, proto.EventNewRoom, proto.NewRoomData{PlayerName: host.name}); err != nil {
		return err
	}
	var joined proto.JoinSuccess
	if err := host.await(ctx, proto.EventJoinSuccess, &joined); err != nil {
		return err
	}
	fmt.Printf("room %d opened by %s\n", joined.RoomID, host.name)

	if err := guest.send(ctx, proto.EventJoinRoom, proto.JoinRoomData{PlayerName: guest.name, RoomID: joined.RoomID}); err != nil {
		return err
	}
	if err := guest.await(ctx, proto.EventJoinSuccess, nil); err != nil {
		return err
	}

	if err := host.send(ctx, proto.EventSelectGame, proto.SelectGameData{GameName: buzzer.Name}); err != nil {
		return err
	}
	settings, _ := json.Marshal(buzzer.Settings{Rounds: 1})
	if err := host.send(ctx, proto.EventStartGame, proto.StartGameData{Settings: settings}); err != nil {
		return err
	}
	for _, c := range []*client{host, guest} {
		if err := c.await(ctx, proto.EventGameStarted, nil); err != nil {
			return err
		}
		if err := c.send(ctx, proto.EventGameLoaded, struct{}{}); err != nil {
			return err
		}
	}

	if err := guest.await(ctx, buzzer.EventRoundOpen, nil); err != nil {
		return err
	}
	if err := guest.send(ctx, buzzer.EventBuzz, struct{}{}); err != nil {
		return err
	}

	var final buzzer.FinalScores
	if err := host.await(ctx, buzzer.EventFinalScores, &final); err != nil {
		return err
	}
	fmt.Printf("final scores: %v winners: %v\n", final.Scores, final.Winners)
	return host.await(ctx, proto.EventGameEnded, nil)
}

func dial(ctx context.Context, url, name string) (*client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", name, err)
	}
	return &client{name: name, conn: conn}, nil
}

func (c *client) send(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("%s send %s: %w", c.name, event, err)
	}
	return nil
}

// await reads frames until event arrives, printing the ones it skips.
func (c *client) await(ctx context.Context, event string, out any) error {
	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			return fmt.Errorf("%s waiting for %s: %w", c.name, event, err)
		}
		if f.Event == proto.EventError {
			return fmt.Errorf("%s got error: %s", c.name, f.Data)
		}
		if f.Event != event {
			fmt.Printf("%s <- %s %s\n", c.name, f.Event, f.Data)
			continue
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(f.Data, out)
	}
}
