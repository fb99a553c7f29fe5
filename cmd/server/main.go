package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatrelay/internal/server"
)

func main() {
	fmt.Println("Starting GoChat relay...")

	// Environment first, flags override it
	config := server.NewConfigFromEnv()
	flag.StringVar(&config.Host, "host", config.Host, "Listen address")
	flag.IntVar(&config.Port, "port", config.Port, "Listen port")
	flag.StringVar(&config.WebSocketAddr, "ws", config.WebSocketAddr, "WebSocket listen address, empty to disable")
	flag.Parse()

	relay := server.NewServer(config)
	effective := relay.Config()

	ln, err := relay.Listen()
	if err != nil {
		log.Fatalf("Unable to start relay: %v", err)
	}

	errs := make(chan error, 2)
	go func() {
		errs <- relay.Serve(ln)
	}()

	if effective.WebSocketAddr != "" {
		go func() {
			errs <- relay.ListenAndServeWebSocket()
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Printf("Got %v, stopping relay", sig)
	case err := <-errs:
		if !errors.Is(err, server.ErrServerClosed) {
			log.Printf("Relay stopped: %v", err)
			exitCode = 1
		}
	}

	if err := relay.Shutdown(effective.ShutdownTimeout); err != nil {
		log.Printf("Shutdown error: %v", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}
