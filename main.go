package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/go-places-chat/cmd"
)

var version = "dev"

func main() {
	// standard log until slog is configured
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cmd.Execute(version)
}
