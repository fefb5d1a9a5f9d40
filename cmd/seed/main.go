package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"backoffice-notify/internal/pkg/logger"
	"backoffice-notify/pkg/database"
	pktNats "backoffice-notify/pkg/nats"
	"backoffice-notify/pkg/notifyevents"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	recipient := flag.String("user", "", "recipient user id")
	actor := flag.String("actor", "", "actor user id (defaults to a random id)")
	burst := flag.Int("burst", 3, "number of notifications published back to back")
	flag.Parse()

	// Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	recipientID, err := uuid.Parse(*recipient)
	if err != nil {
		log.Fatalf("Error: -user must be a uuid: %v", err)
	}
	actorID := uuid.New()
	if *actor != "" {
		if actorID, err = uuid.Parse(*actor); err != nil {
			log.Fatalf("Error: -actor must be a uuid: %v", err)
		}
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}
	db, err := database.NewGormDBFromDSN(dsn, database.Options{})
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}
	natsPub, err := pktNats.NewPublisher(natsURL)
	if err != nil {
		log.Fatalf("Error: Failed to connect to NATS: %v", err)
	}
	defer natsPub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("Seeding tickets and meeting minutes...")
	targets, err := SeedEntities(ctx, db, actorID)
	if err != nil {
		log.Fatalf("Error: Failed to seed entities: %v", err)
	}

	seedLogger := logger.NewZapLogger("logs/seed.log", false)
	defer seedLogger.Sync()

	publisher := notifyevents.NewNatsPublisher(natsPub, seedLogger)
	sent := PublishSampleNotifications(ctx, publisher, recipientID, actorID, targets, *burst)

	log.Printf("✅ Sent %d notification events for %s", sent, recipientID)
}
