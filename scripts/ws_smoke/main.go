package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/flowchat-server/internal/proto"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ws_smoke: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("FLOWCHAT_TOKEN"), "session token (see `flowchat token`)")
	chatID := flag.String("chat", "", "chat id to join and message")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *chatID == "" {
		return fmt.Errorf("-token and -chat are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	outgoing := []proto.Outbound{
		{Event: proto.EventChatJoin, Data: proto.ChatIDData{ChatID: *chatID}},
		{Event: proto.EventMessageSend, Data: proto.SendMessageData{ChatID: *chatID, Content: *text}},
	}
	for _, out := range outgoing {
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return fmt.Errorf("send %s: %w", out.Event, err)
		}
	}

	for {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("event=%s data=%s\n", in.Event, string(in.Data))

		switch in.Event {
		case "message:receive":
			var evt proto.MessageReceive
			if err := json.Unmarshal(in.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			if evt.Message.Content == *text {
				fmt.Printf("round trip ok: id=%s sender=%s\n", evt.Message.ID, evt.Message.Sender.Username)
				return nil
			}
		case "error", "message:error":
			return fmt.Errorf("server error: %s", string(in.Data))
		}
	}
}
