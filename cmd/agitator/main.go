// Package main - agitator
// Load generator: many concurrent websocket clients moving, fighting,
// reviving and giving up against a running revive server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/gqrshy/tacticalrevive/internal/protocol"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	OutFile        string
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent    int64
	PacketsReceived int64
	NoticesReceived int64
	Errors          int64
	Latencies       []time.Duration
	mu              sync.Mutex
}

var actionTypes = []string{
	protocol.CommandMove,
	protocol.CommandMove,
	protocol.CommandAttack,
	protocol.CommandAttack,
	protocol.CommandRequestHelp,
	protocol.CommandStopHelp,
	protocol.CommandRequestGiveUp,
	protocol.CommandRespawn,
}

func main() {
	var config Config
	root := &cobra.Command{
		Use:   "agitator",
		Short: "Websocket load generator for the revive server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config)
		},
	}
	root.Flags().StringVar(&config.ServerURL, "url", "ws://localhost:8080/ws", "WebSocket server URL")
	root.Flags().IntVar(&config.NumClients, "clients", 50, "Number of concurrent clients")
	root.Flags().DurationVar(&config.ActionInterval, "interval", 100*time.Millisecond, "Action interval per client")
	root.Flags().DurationVar(&config.TestDuration, "duration", 60*time.Second, "Test duration")
	root.Flags().StringVar(&config.OutFile, "out", "stress_test_results.json", "Where to write the JSON results")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context, config Config) error {
	if config.NumClients <= 0 {
		return fmt.Errorf("clients must be positive")
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - revive server load test")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Clients:  %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(parent, config.TestDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	stats := runStressTest(ctx, config)
	return printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	ids := make([]uuid.UUID, config.NumClients)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	fmt.Println("\nStarting clients...")
	for i := range ids {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, ids, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: sent=%d packets=%d notices=%d errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent),
					atomic.LoadInt64(&stats.PacketsReceived),
					atomic.LoadInt64(&stats.NoticesReceived),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, ids []uuid.UUID, config Config, stats *Stats) {
	self := ids[clientID]

	u, err := url.Parse(config.ServerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client %d: url parse error: %v\n", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	q := u.Query()
	q.Set("entity_id", self.String())
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client %d: connection failed: %v\n", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	go func() {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				if _, err := protocol.DecodeUpdate(data); err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					continue
				}
				atomic.AddInt64(&stats.PacketsReceived, 1)
				continue
			}
			atomic.AddInt64(&stats.NoticesReceived, 1)
		}
	}()

	rng := rand.New(rand.NewSource(int64(clientID) + time.Now().UnixNano()))
	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			msg, err := randomCommand(rng, self, ids)
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				continue
			}
			start := time.Now()
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			latency := time.Since(start)
			atomic.AddInt64(&stats.MessagesSent, 1)

			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, latency)
			stats.mu.Unlock()
		}
	}
}

func randomCommand(rng *rand.Rand, self uuid.UUID, ids []uuid.UUID) ([]byte, error) {
	other := ids[rng.Intn(len(ids))]
	switch t := actionTypes[rng.Intn(len(actionTypes))]; t {
	case protocol.CommandMove:
		return protocol.EncodeCommand(t, self, protocol.MovePayload{
			X: rng.Float64() * 6,
			Z: rng.Float64() * 6,
		})
	case protocol.CommandAttack:
		return protocol.EncodeCommand(t, self, protocol.AttackPayload{TargetID: other, Amount: float32(2 + rng.Intn(10))})
	case protocol.CommandRequestHelp:
		return protocol.EncodeCommand(t, self, protocol.RequestHelpPayload{TargetID: other})
	case protocol.CommandRequestGiveUp:
		return protocol.EncodeCommand(t, self, protocol.RequestGiveUpPayload{Holding: rng.Intn(4) == 0})
	default:
		return protocol.EncodeCommand(t, self, nil)
	}
}

func printResults(stats *Stats, config Config) error {
	fmt.Println("\n=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	packets := atomic.LoadInt64(&stats.PacketsReceived)
	notices := atomic.LoadInt64(&stats.NoticesReceived)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Commands Sent:     %d\n", sent)
	fmt.Printf("Packets Received:  %d\n", packets)
	fmt.Printf("Notices Received:  %d\n", notices)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	if len(stats.Latencies) > 0 {
		var total time.Duration
		min, max := stats.Latencies[0], stats.Latencies[0]
		for _, l := range stats.Latencies {
			total += l
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}
		avg := total / time.Duration(len(stats.Latencies))

		fmt.Printf("\nWrite latency:\n")
		fmt.Printf("  Min: %v\n", min)
		fmt.Printf("  Avg: %v\n", avg)
		fmt.Printf("  Max: %v\n", max)
	}

	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && packets > 0:
		fmt.Println("TEST PASSED: server replicated under load")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("TEST WARNING: some errors detected")
	default:
		fmt.Println("TEST FAILED: high error rate")
	}
	fmt.Println("=========================================")

	results := map[string]any{
		"commands_sent":      sent,
		"packets_received":   packets,
		"notices_received":   notices,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]any{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}
	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(config.OutFile, jsonData, 0644); err != nil {
		return err
	}
	fmt.Printf("\nResults saved to %s\n", config.OutFile)
	return nil
}
