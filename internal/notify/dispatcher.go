package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lamstech/quickcards/internal/queue"
	"github.com/lamstech/quickcards/pkg/logger"
)

// smsJob is the payload parked on the retry stream when a send fails.
type smsJob struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Dispatcher sends SMS with a durable fallback: a failed send is parked on
// a redis stream and retried by the consumer until it goes through or the
// queue dead-letters it. Delivery is best-effort by contract; a purchase
// never fails because its SMS did.
type Dispatcher struct {
	sender Sender
	retry  *queue.Queue
}

func NewDispatcher(sender Sender, retry *queue.Queue) *Dispatcher {
	return &Dispatcher{sender: sender, retry: retry}
}

// Send attempts immediate delivery and reports whether it succeeded. On
// failure the message is enqueued for retry; only a failure to even enqueue
// surfaces as an error.
func (d *Dispatcher) Send(ctx context.Context, phone, message string) (bool, error) {
	if err := d.sender.Send(ctx, phone, message); err == nil {
		return true, nil
	} else {
		logger.Warn("SMS send failed, queueing for retry", "phone", phone, "error", err)
	}

	if d.retry == nil {
		return false, nil
	}
	_, err := d.retry.PublishJSON(ctx, smsJob{Phone: phone, Message: message}, map[string]string{
		"kind": "sms",
	})
	if err != nil {
		return false, fmt.Errorf("queue sms for retry: %w", err)
	}
	return false, nil
}

// StartRetryConsumer drains the retry stream. Handler errors leave the
// message pending so the queue redelivers it after the visibility timeout.
func (d *Dispatcher) StartRetryConsumer() error {
	if d.retry == nil {
		return nil
	}
	return d.retry.Consume(func(ctx context.Context, msg *queue.Message) error {
		var job smsJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			logger.Error("Dropping malformed sms job", "message_id", msg.ID, "error", err)
			return nil
		}
		if err := d.sender.Send(ctx, job.Phone, job.Message); err != nil {
			return fmt.Errorf("retry sms send: %w", err)
		}
		logger.Info("Queued SMS delivered", "phone", job.Phone, "attempts", msg.Attempts)
		return nil
	})
}
