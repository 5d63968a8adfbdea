package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/partyhub-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_play: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "cli-player", "player name")
	room := flag.Int("room", 0, "room to join; 0 opens a new room")
	token := flag.String("token", "", "handshake token")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *room == 0 {
		err = send(ctx, conn, proto.EventNewRoom, fmt.Sprintf(`{"playerName":%q}`, *name))
	} else {
		err = send(ctx, conn, proto.EventJoinRoom, fmt.Sprintf(`{"playerName":%q,"roomId":%d}`, *name, *room))
	}
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *name)
	fmt.Println(`Type "<event> [json]" and press Enter, e.g. selectGame {"gameName":"buzzer"}. Ctrl+C to exit.`)

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, event, data string) error {
	if data == "" {
		data = "{}"
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("data for %s is not valid JSON", event)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: json.RawMessage(data)}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch f.Event {
		case proto.EventJoinSuccess:
			var evt proto.JoinSuccess
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				fmt.Printf("* in room %d\n", evt.RoomID)
			}
		case proto.EventPlayersChanged:
			var evt proto.PlayersChanged
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				fmt.Printf("* players: %s\n", strings.Join(evt.PlayerNames, ", "))
			}
		case proto.EventError, proto.EventJoinFailed, proto.EventStartFailed:
			fmt.Printf("! %s %s\n", f.Event, f.Data)
		default:
			fmt.Printf("< %s %s\n", f.Event, f.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			event, data, _ := strings.Cut(strings.TrimSpace(line), " ")
			if event == "" {
				continue
			}
			if err := send(ctx, conn, event, strings.TrimSpace(data)); err != nil {
				log.Printf("%v", err)
			}
		}
	}
}
