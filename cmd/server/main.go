// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/ponghall/ponghall/internal/auth"
	"github.com/ponghall/ponghall/internal/cache"
	"github.com/ponghall/ponghall/internal/database"
	"github.com/ponghall/ponghall/internal/handlers"
	"github.com/ponghall/ponghall/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// The match-history feed is optional; the engine runs without it.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("match feed disabled: %v", err)
	}

	srv := handlers.NewArenaServer()

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.Handle("/ws", middleware.LogMiddleware(logger)(handlers.WSHandler(logger, srv)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
