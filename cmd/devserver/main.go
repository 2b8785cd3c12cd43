package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/devserver"
	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("init logger:", err)
	}
	defer logger.Sync()

	addr := os.Getenv("DEVSERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := devserver.New(devserver.Options{
		AuthToken: os.Getenv("DEVSERVER_AUTH_TOKEN"),
		Logger:    logger,
	})

	// Optional scripted channel, e.g. DEVSERVER_CHANNEL=general:alice,bob
	if seed := os.Getenv("DEVSERVER_CHANNEL"); seed != "" {
		name, users, ok := strings.Cut(seed, ":")
		if !ok {
			logger.Fatal("DEVSERVER_CHANNEL must look like name:user1,user2")
		}
		var members []models.Member
		for _, u := range strings.Split(users, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				members = append(members, models.Member{UserID: u, DisplayName: u})
			}
		}
		srv.Store().SeedChannel(name, members)
		logger.Info("seeded channel", zap.String("channel", name), zap.Int("members", len(members)))
	}

	go func() {
		if err := srv.Listen(addr); err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
