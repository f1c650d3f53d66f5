package main

import "log"

func main() {
	cfg := loadConfig()

	server, err := newServer(cfg)
	if err != nil {
		log.Fatalf("[SERVER] Failed to start: %v", err)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("[SERVER] HTTP server error: %v", err)
	}
}
