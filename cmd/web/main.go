package main

import (
	"fmt"
	"log"

	"github.com/census-resolver/internal/config"
	"github.com/census-resolver/internal/web"
)

func main() {
	// Load environment configuration
	config.LoadEnv()

	fmt.Println("=== Census Reference Resolver ===")

	webConfig := web.FromEnv()

	fmt.Printf("Server: http://%s:%d\n", webConfig.Server.Host, webConfig.Server.Port)
	fmt.Printf("Backend: %s\n", webConfig.Database.Backend)
	if webConfig.Database.Backend == web.BackendSQLite {
		fmt.Printf("Snapshot: %s\n", webConfig.Database.SnapshotPath)
	}

	server, err := web.NewServer(webConfig)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
