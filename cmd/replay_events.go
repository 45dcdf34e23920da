package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/case-service/internal/config"
	"github.com/psds-microservice/case-service/internal/database"
	"github.com/psds-microservice/case-service/internal/kafka"
	"github.com/psds-microservice/case-service/internal/model"
	"github.com/spf13/cobra"
)

var replayEventsCmd = &cobra.Command{
	Use:   "replay-events",
	Short: "Replay the case_events table into Kafka for downstream consumers",
	RunE:  runReplayEvents,
}

func init() {
	rootCmd.AddCommand(replayEventsCmd)
}

func runReplayEvents(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopicCase == "" {
		return fmt.Errorf("replay-events: KAFKA_BROKERS and KAFKA_TOPIC_CASE are required")
	}
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	var events []model.CaseEvent
	if err := conn.Order("ts ASC").Find(&events).Error; err != nil {
		return fmt.Errorf("list case events: %w", err)
	}
	log.Printf("replay-events: found %d events", len(events))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicCase)
	defer producer.Close()
	for i := range events {
		ev := &events[i]
		payload := map[string]interface{}{
			"case_id":   ev.CaseID,
			"kind":      ev.Kind,
			"actor":     ev.Actor,
			"message":   ev.Message,
			"is_system": ev.IsSystem,
			"ts":        ev.TS.UTC().Format(time.RFC3339),
		}
		producer.ProduceCaseEvent(ctx, "case.event", payload)
		if (i+1)%100 == 0 || i == len(events)-1 {
			log.Printf("replay-events: sent %d/%d", i+1, len(events))
		}
	}
	log.Printf("replay-events: done, sent %d events", len(events))
	return nil
}
