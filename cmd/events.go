/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jobhub/apiserver/config"
	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/logging"
	"github.com/jobhub/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events on the message broker",
}

// eventsTailCmd logs every event published on the configured channel
// until interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print events from MQ_EVENTS_CHANNEL as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return fmt.Errorf("MQ_BACKEND is %q; nothing to tail", cfg.MQ.Backend)
		}
		defer queue.Close()

		logger.WithField("channel", cfg.MQ.EventsChannel).Info("tailing events")
		err = queue.Subscribe(ctx, cfg.MQ.EventsChannel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				// Undecodable payloads are acked and dropped.
				logger.WithError(err).WithField("message_id", msg.ID).Warn("skipping message")
				return nil
			}
			logger.WithFields(logrus.Fields{
				"event_id":    event.ID,
				"event_type":  event.Type,
				"actor_id":    event.ActorID,
				"resource_id": event.ResourceID,
				"occurred_at": event.OccurredAt,
				"attributes":  event.Attributes,
			}).Info("event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
