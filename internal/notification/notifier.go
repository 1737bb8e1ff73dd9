// Package notification tells the outside world that a trip has a destination.
package notification

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html"
	"strconv"

	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/models"
)

const (
	ChannelSNS   = "sns"
	ChannelEmail = "email"

	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, text, html string) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, subject, message string, attributes map[string]string) (string, error)
}

// CommitmentNotifier publishes the commitment event and emails the trip owner.
// Either channel may be nil, in which case it is reported as disabled.
type CommitmentNotifier struct {
	email  EmailSender
	events EventPublisher
	logger logger.Logger
}

func NewCommitmentNotifier(email EmailSender, events EventPublisher, log logger.Logger) *CommitmentNotifier {
	return &CommitmentNotifier{
		email:  email,
		events: events,
		logger: log.WithFields(map[string]interface{}{"component": "commitment-notifier"}),
	}
}

// Notify sends on every configured channel. A failing channel does not stop the
// others; the returned error joins every channel failure.
func (n *CommitmentNotifier) Notify(ctx context.Context, event models.CommitmentEvent) ([]models.Notification, error) {
	if event.EventType == "" {
		event.EventType = models.EventDestinationCommitted
	}

	results := []models.Notification{
		n.publish(ctx, event),
		n.sendEmail(ctx, event),
	}

	var errs []error
	for _, r := range results {
		if r.Status == StatusFailed {
			errs = append(errs, errors.NewNotificationSendFailedError(r.Channel, stderrors.New(r.Error)))
		}
	}
	return results, stderrors.Join(errs...)
}

func (n *CommitmentNotifier) publish(ctx context.Context, event models.CommitmentEvent) models.Notification {
	if n.events == nil {
		return models.Notification{Channel: ChannelSNS, Status: StatusDisabled}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return n.failed(ChannelSNS, event, err)
	}
	id, err := n.events.Publish(ctx, "Destination committed", string(payload), map[string]string{
		"eventType": event.EventType,
		"tripId":    strconv.FormatInt(event.TripID, 10),
	})
	if err != nil {
		return n.failed(ChannelSNS, event, err)
	}
	return models.Notification{Channel: ChannelSNS, Status: StatusSent, MessageID: id}
}

func (n *CommitmentNotifier) sendEmail(ctx context.Context, event models.CommitmentEvent) models.Notification {
	if n.email == nil || event.OwnerEmail == "" {
		return models.Notification{Channel: ChannelEmail, Status: StatusDisabled}
	}

	subject, text, htmlBody := renderCommitmentEmail(event)
	id, err := n.email.SendEmail(ctx, []string{event.OwnerEmail}, subject, text, htmlBody)
	if err != nil {
		return n.failed(ChannelEmail, event, err)
	}
	return models.Notification{Channel: ChannelEmail, Status: StatusSent, MessageID: id}
}

func (n *CommitmentNotifier) failed(channel string, event models.CommitmentEvent, err error) models.Notification {
	n.logger.Warn("commitment notification failed", map[string]interface{}{
		"channel": channel,
		"tripId":  event.TripID,
		"error":   err.Error(),
	})
	return models.Notification{Channel: channel, Status: StatusFailed, Error: err.Error()}
}

func renderCommitmentEmail(event models.CommitmentEvent) (subject, text, body string) {
	place := event.Destination.Name
	if event.Destination.Country != "" {
		place = event.Destination.Name + ", " + event.Destination.Country
	}
	title := event.TripTitle
	if title == "" {
		title = "your trip"
	}

	subject = fmt.Sprintf("%s is locked in for %s", place, title)
	text = fmt.Sprintf("Great choice! %s is now the destination of %s.\n\n%s\n\nOpen your trip to start planning the details.",
		place, title, event.Destination.Description)
	body = fmt.Sprintf("<p>Great choice! <strong>%s</strong> is now the destination of %s.</p><p>%s</p><p>Open your trip to start planning the details.</p>",
		html.EscapeString(place), html.EscapeString(title), html.EscapeString(event.Destination.Description))
	return subject, text, body
}
