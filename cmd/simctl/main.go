// Command simctl is a small debug CLI that loads simulator configuration
// and prints the resolved values, for verifying layered config/env
// overrides before a large run. Adapted from the gateway's
// cmd/debug-config/main.go, which did the same for the server's config.
package main

import (
	"fmt"
	"os"

	"github.com/evse-sim/simulator/internal/config"
)

func main() {
	fmt.Println("=== EVSE Simulator Configuration ===")

	fmt.Println("\n--- Environment Variables ---")
	for _, env := range []string{
		"SIM_PROFILE",
		"SIM_CSMS_URLS",
		"SIM_KAFKA_BROKERS",
		"SIM_LOG_LEVEL",
		"SIM_METRICS_LISTEN_ADDR",
	} {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("%s = %s\n", env, v)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	fmt.Println("\n--- Loading Configuration ---")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n--- Resolved Configuration ---")
	fmt.Printf("App Name:             %s\n", cfg.App.Name)
	fmt.Printf("App Profile:          %s\n", cfg.App.Profile)
	fmt.Printf("Session Heartbeat:    %s\n", cfg.Session.HeartbeatInterval)
	fmt.Printf("Session MeterValues:  %s\n", cfg.Session.MeterValueInterval)
	fmt.Printf("Session InboxSize:    %d\n", cfg.Session.InboxSize)
	fmt.Printf("Pool MaxSessions:     %d\n", cfg.Pool.MaxSessions)
	fmt.Printf("Pool MemoryFloor:     %d bytes\n", cfg.Pool.MemoryFloorBytes)
	fmt.Printf("CSMS URL:             %s\n", cfg.CSMS.URL)
	fmt.Printf("CSMS Subprotocol:     %s\n", cfg.CSMS.SubProtocol)
	fmt.Printf("CSMS TrustAllCerts:   %v\n", cfg.CSMS.TrustAllCerts)
	fmt.Printf("Kafka Brokers:        %v\n", cfg.Kafka.Brokers)
	fmt.Printf("Kafka CommandsTopic:  %s\n", cfg.Kafka.CommandsTopic)
	fmt.Printf("Kafka EventsTopic:    %s\n", cfg.Kafka.EventsTopic)
	fmt.Printf("Redis Enabled:        %v\n", cfg.Redis.Enabled)
	fmt.Printf("Redis Addr:           %s\n", cfg.Redis.Addr)
	fmt.Printf("Log Level:            %s\n", cfg.Log.Level)
	fmt.Printf("Metrics Listen Addr:  %s\n", cfg.Metrics.ListenAddr)

	fmt.Println("\n=== Configuration Test Complete ===")
}
