// Command loadtest opens several websocket sessions against a running relay,
// sends messages from each and reports how many broadcasts every session saw.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/johndosdos/duochat/internal/model"
)

type result struct {
	session  string
	sent     int
	received int
	errors   int
}

func main() {
	url := flag.String("url", "ws://localhost:3000/ws", "websocket endpoint")
	clients := flag.Int("clients", 10, "concurrent sessions")
	messages := flag.Int("messages", 5, "messages per session")
	channel := flag.String("channel", model.Channel1, "channel to post to")
	wait := flag.Duration("wait", 3*time.Second, "how long to keep reading after the last send")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results := make(chan result, *clients)
	var wg sync.WaitGroup
	for i := range *clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := runSession(ctx, *url, fmt.Sprintf("load-%d", i), *channel, *messages, *wait)
			if err != nil {
				log.Printf("session %d: %v", i, err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	expected := *clients * *messages
	for res := range results {
		log.Printf("session %s: sent %d, received %d/%d broadcasts, %d errors",
			res.session, res.sent, res.received, expected, res.errors)
	}
}

func runSession(ctx context.Context, url, name, channel string, count int, wait time.Duration) (result, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return result{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	var res result
	res.session, err = readIdentity(ctx, conn)
	if err != nil {
		return res, err
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt model.InboundEvent
			if err := wsjson.Read(readCtx, conn, &evt); err != nil {
				return
			}
			switch evt.Type {
			case model.EventMessage:
				res.received++
			case model.EventError:
				res.errors++
			}
		}
	}()

	for i := range count {
		err := wsjson.Write(ctx, conn, model.Event{
			Type: model.EventMessage,
			Payload: model.SubmitPayload{
				Channel:     channel,
				DisplayName: name,
				Text:        fmt.Sprintf("%s message %d", name, i),
			},
		})
		if err != nil {
			stopReading()
			<-done
			return res, fmt.Errorf("send: %w", err)
		}
		res.sent++
	}

	time.Sleep(wait)
	stopReading()
	<-done

	conn.Close(websocket.StatusNormalClosure, "done")
	return res, nil
}

// readIdentity reads the first event, which must carry the session id.
func readIdentity(ctx context.Context, conn *websocket.Conn) (string, error) {
	var evt model.InboundEvent
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	if evt.Type != model.EventIdentity {
		return "", fmt.Errorf("expected identity event, got %q", evt.Type)
	}

	var id string
	if err := json.Unmarshal(evt.Payload, &id); err != nil {
		return "", fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}
