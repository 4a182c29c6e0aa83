package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/smartchess/internal/remote"
)

func main() {
	baseURL := os.Getenv("REMOTE_BASE_URL")
	streamURL := os.Getenv("REMOTE_STREAM_URL")
	token := os.Getenv("REMOTE_TOKEN")

	if baseURL == "" {
		log.Fatal("REMOTE_BASE_URL is required")
	}
	headers := remote.BearerToken(token)

	client := remote.NewClient(baseURL,
		remote.WithHeaderProvider(headers),
		remote.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acct, err := client.Account(ctx)
	if err != nil {
		log.Printf("/api/account error: %v", err)
	} else {
		log.Printf("/api/account ok: id=%s username=%s", acct.ID, acct.Username)
	}

	if streamURL == "" {
		log.Println("REMOTE_STREAM_URL not set; skipping stream check")
		return
	}

	url := strings.TrimRight(streamURL, "/") + "/api/stream/event"
	stream := remote.NewStream(url, 5, headers,
		func(msg *remote.Message) {
			game := "-"
			if msg.Game != nil {
				game = msg.Game.GameKey()
			}
			fmt.Printf("stream msg type=%s game=%s\n", msg.Type, game)
		},
		func(state remote.StreamState) {
			log.Printf("stream state: %s", state)
		},
	)

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := stream.Connect(cctx); err != nil {
		log.Printf("stream connect error: %v", err)
		return
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = stream.Close(context.Background())
}
