package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/event"
	"userprofile/sink"
	"userprofile/sink/stdout"

	_ "userprofile/sink/kafka"
)

func (c *CLI) newProduceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish a single event to its topic",
	}
	cmd.PersistentFlags().Bool("dry-run", false, "Print the message instead of publishing it")
	cmd.PersistentFlags().String("event-id", "", "Event id (random when empty)")

	cmd.AddCommand(c.newProduceUserCmd())
	cmd.AddCommand(c.newProduceOrderCmd())
	cmd.AddCommand(c.newProduceNotificationCmd())
	cmd.AddCommand(c.newProduceAuditCmd())
	return cmd
}

func (c *CLI) newProduceUserCmd() *cobra.Command {
	var (
		op, id, name, email, avatar, format string
	)
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Publish a user created/updated/deleted event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			u := domain.NewUser(id, name, email, now, now)
			u.Avatar = avatar
			ue := event.UserEvent{ID: eventID(cmd), Op: event.Op(op), User: u, OccurredAt: now}
			if err := ue.Validate(); err != nil {
				return err
			}
			ct := event.ContentTypeProtobuf
			if format == "json" {
				ct = event.ContentTypeJSON
			}
			payload, err := event.EncodeUserEvent(ue, ct)
			if err != nil {
				return err
			}
			return c.publish(cmd, event.User, ue.ID, u.ID, ct, payload)
		},
	}
	cmd.Flags().StringVar(&op, "op", string(event.OpCreated), "created|updated|deleted")
	cmd.Flags().StringVar(&id, "id", "", "User id")
	cmd.Flags().StringVar(&name, "name", "", "User name")
	cmd.Flags().StringVar(&email, "email", "", "E-mail address")
	cmd.Flags().StringVar(&avatar, "avatar", "", "Avatar URL")
	cmd.Flags().StringVar(&format, "format", "protobuf", "Payload encoding: protobuf|json")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (c *CLI) newProduceOrderCmd() *cobra.Command {
	var o event.OrderEvent
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Publish an order event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.OccurredAt = time.Now().UTC()
			return c.publishJSON(cmd, event.Order, o.UserID, o)
		},
	}
	cmd.Flags().StringVar(&o.OrderID, "id", "", "Order id")
	cmd.Flags().StringVar(&o.UserID, "user", "", "Owning user id")
	cmd.Flags().StringVar(&o.Status, "status", "created", "Order status")
	cmd.Flags().Float64Var(&o.Amount, "amount", 0, "Order amount")
	cmd.Flags().StringVar(&o.Currency, "currency", "EUR", "Currency code")
	return cmd
}

func (c *CLI) newProduceNotificationCmd() *cobra.Command {
	var n event.NotificationEvent
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Publish a notification event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n.OccurredAt = time.Now().UTC()
			return c.publishJSON(cmd, event.Notification, n.UserID, n)
		},
	}
	cmd.Flags().StringVar(&n.NotificationID, "id", "", "Notification id")
	cmd.Flags().StringVar(&n.UserID, "user", "", "Recipient user id")
	cmd.Flags().StringVar(&n.Channel, "channel", "email", "Delivery channel")
	cmd.Flags().StringVar(&n.Message, "message", "", "Message body")
	return cmd
}

func (c *CLI) newProduceAuditCmd() *cobra.Command {
	var a event.AuditEvent
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Publish an audit event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.ID = eventID(cmd)
			a.OccurredAt = time.Now().UTC()
			return c.publishJSON(cmd, event.Audit, a.Subject, a)
		},
	}
	cmd.Flags().StringVar(&a.Actor, "actor", "cli", "Who acted")
	cmd.Flags().StringVar(&a.Action, "action", "", "What was done")
	cmd.Flags().StringVar(&a.Subject, "subject", "", "What it was done to")
	cmd.Flags().StringVar(&a.Detail, "detail", "", "Free text")
	return cmd
}

type validated interface{ Validate() error }

func (c *CLI) publishJSON(cmd *cobra.Command, t event.Type, key string, v validated) error {
	if err := v.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.publish(cmd, t, eventID(cmd), key, event.ContentTypeJSON, payload)
}

func (c *CLI) publish(cmd *cobra.Command, t event.Type, id, key, contentType string, payload []byte) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	topic, ok := event.NewTopicMap(cfg.Topics).TopicOf(t)
	if !ok {
		return fmt.Errorf("no topic configured for %s events", t)
	}

	pub, err := openPublisher(cmd, cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	err = pub.Publish(cmd.Context(), sink.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: map[string]string{event.HeaderContentType: contentType, event.HeaderEventID: id},
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", t, err)
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); !dry {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published %s event %s to %s\n", t, id, topic)
	}
	return nil
}

func openPublisher(cmd *cobra.Command, cfg config.ServiceConfig) (sink.Publisher, error) {
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return stdout.New(cmd.OutOrStdout()), nil
	}
	return sink.Open("kafka", cfg)
}

// eventID memoises the id so the header and payload agree.
func eventID(cmd *cobra.Command) string {
	id, _ := cmd.Flags().GetString("event-id")
	if id == "" {
		id = event.NewID()
		_ = cmd.Flags().Set("event-id", id)
	}
	return id
}
