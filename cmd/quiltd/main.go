package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quilt-im/quilt/internal/client"
	"github.com/quilt-im/quilt/internal/messaging"
	"github.com/quilt-im/quilt/internal/metrics"
	"github.com/quilt-im/quilt/internal/room"
	"github.com/quilt-im/quilt/internal/transport"
)

func main() {
	// --- Homeserver ---
	transportConfig := transport.DefaultClientConfig()
	if v := os.Getenv("HOMESERVER_URL"); v != "" {
		transportConfig.HomeserverURL = v
	}
	transportConfig.AccessToken = os.Getenv("ACCESS_TOKEN")
	if transportConfig.AccessToken == "" {
		log.Fatal("ACCESS_TOKEN is required")
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			transportConfig.RequestTimeout = d
		}
	}

	connConfig := client.DefaultConfig()
	connConfig.UserID = os.Getenv("USER_ID")
	if connConfig.UserID == "" {
		log.Fatal("USER_ID is required")
	}
	if v := os.Getenv("SYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			connConfig.SyncTimeout = d
		}
	}

	metricsAddr := ":9300"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	log.Printf("Quilt client starting")
	log.Printf("  homeserver:   %s", transportConfig.HomeserverURL)
	log.Printf("  user_id:      %s", connConfig.UserID)
	log.Printf("  sync_timeout: %s", connConfig.SyncTimeout)
	log.Printf("  nats_url:     %s", natsConfig.URL)
	log.Printf("  metrics_addr: %s", metricsAddr)

	// The connection is built before the transport because the
	// transport delivers its callbacks through conn.Schedule.
	sink := messaging.NewSink(natsClient)
	conn := client.NewConn(connConfig, sink, room.NewMemoryImageStore())
	homeserver := transport.NewClient(transportConfig, conn.Schedule)
	conn.SetTransport(homeserver, homeserver)

	// --- Frontend commands over NATS ---
	err = natsClient.Subscribe(messaging.SubjectSend, func(msg *nats.Msg) {
		var cmd messaging.SendCmd
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			log.Printf("send command unmarshal error: %v", err)
			return
		}
		conn.SendMessage(cmd.RoomID, cmd.Message)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to %s: %v", messaging.SubjectSend, err)
	}

	err = natsClient.Subscribe(messaging.SubjectLeave, func(msg *nats.Msg) {
		var cmd messaging.LeaveCmd
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			log.Printf("leave command unmarshal error: %v", err)
			return
		}
		conn.LeaveRoom(cmd.RoomID)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to %s: %v", messaging.SubjectLeave, err)
	}

	// --- Metrics ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Printf("metrics listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Printf("received %s, shutting down", s)
		conn.Close()
		cancel()
	}()

	go conn.SyncLoop(ctx)
	conn.Run(ctx)

	log.Printf("Quilt client stopped")
}
