package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/storefront-auth-api/internal/config"
	"github.com/storefront-auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/storefront-auth-api/internal/infrastructure/jwt"
	"github.com/storefront-auth-api/internal/infrastructure/notify"
	"github.com/storefront-auth-api/internal/infrastructure/redisstore"
	"github.com/storefront-auth-api/internal/infrastructure/smtp"
	"github.com/storefront-auth-api/internal/infrastructure/sns"
	transporthttp "github.com/storefront-auth-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Redis holds the pending verification records; without it no flow works.
	redisClient := redisstore.NewClient(cfg)
	kvStore := redisstore.New(redisClient)
	if err := kvStore.Ping(context.Background()); err != nil {
		log.Fatalf("redis unreachable at %s: %v", cfg.RedisAddr, err)
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// Tokens are the whole point of the service; refuse to start without a secret.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	deps := &transporthttp.Deps{
		KVStore:      kvStore,
		CustomerRepo: dynamo.NewCustomerRepo(dynamoClient, cfg.DynamoTables.Customers),
		IdentityRepo: dynamo.NewIdentityRepo(dynamoClient, cfg.DynamoTables.AuthIdentities),
		Notifier:     notify.NewDispatcher(mailer, smsSender),
		JWTProvider:  jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	_ = redisClient.Close()
	log.Println("Server stopped")
}
