package notification

import (
	"context"
	"sort"

	"github.com/georgemunganga/stockwatch/internal/obs"
)

// LogPublisher writes each message as an alert_published log line.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, msg Message) error {
	keys := make([]string, 0, len(msg.Attributes))
	for k := range msg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := []any{"subject", msg.Subject, "message", msg.Text}
	for _, k := range keys {
		args = append(args, k, msg.Attributes[k])
	}
	obs.Logger.Info("alert_published", args...)
	return nil
}
