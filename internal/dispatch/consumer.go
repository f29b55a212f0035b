package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/courtside/mailer/internal/metrics"
	"github.com/courtside/mailer/internal/pkg/httpretry"
)

// JobProcessor runs a decoded job. *Processor implements it.
type JobProcessor interface {
	Process(ctx context.Context, job Job) (*Report, error)
}

// ConsumerOptions tunes queue polling.
type ConsumerOptions struct {
	WaitTimeSeconds   int32
	VisibilityTimeout int32
	MaxMessages       int32
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
	Sleep        httpretry.SleepFunc
}

// Consumer long-polls the campaign queue.
type Consumer struct {
	client    QueueAPI
	queueURL  string
	processor JobProcessor
	opts      ConsumerOptions
}

// NewConsumer creates a consumer. Zero options take SQS long-poll defaults.
func NewConsumer(client QueueAPI, queueURL string, processor JobProcessor, opts ConsumerOptions) *Consumer {
	if opts.WaitTimeSeconds <= 0 {
		opts.WaitTimeSeconds = 20
	}
	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 10
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = httpretry.Sleep
	}
	return &Consumer{client: client, queueURL: queueURL, processor: processor, opts: opts}
}

// Run polls until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("campaign consumer started", "queue_url", c.queueURL)
	for {
		if err := ctx.Err(); err != nil {
			log.Info("campaign consumer stopped")
			return nil
		}
		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("queue receive failed", "err", err)
			_ = c.opts.Sleep(ctx, c.opts.ErrorBackoff)
		}
	}
}

// PollOnce receives one batch of messages and handles each in turn.
func (c *Consumer) PollOnce(ctx context.Context) error {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.opts.MaxMessages,
		WaitTimeSeconds:     c.opts.WaitTimeSeconds,
	}
	if c.opts.VisibilityTimeout > 0 {
		in.VisibilityTimeout = c.opts.VisibilityTimeout
	}
	out, err := c.client.ReceiveMessage(ctx, in)
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		c.handle(ctx, msg)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg types.Message) {
	messageID := aws.ToString(msg.MessageId)

	var job Job
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
		log.Warn("dropping malformed campaign message", "message_id", messageID, "err", err)
		metrics.RecordDispatchJob("malformed")
		c.delete(ctx, msg)
		return
	}

	report, err := c.processor.Process(ctx, job)
	switch {
	case err == nil:
		metrics.RecordDispatchJob("completed")
		log.Info("campaign job completed", "campaign_id", job.CampaignID, "sent", report.Sent,
			"failed", report.Failed)
		c.delete(ctx, msg)
	case errors.Is(err, ErrLockHeld):
		metrics.RecordDispatchJob("locked")
		log.Info("campaign locked elsewhere, leaving message for redelivery", "campaign_id", job.CampaignID)
	case errors.Is(err, ErrInvalidJob), errors.Is(err, ErrTemplateMissing):
		metrics.RecordDispatchJob("dropped")
		log.Warn("dropping campaign job", "campaign_id", job.CampaignID, "err", err)
		c.delete(ctx, msg)
	default:
		metrics.RecordDispatchJob("error")
		log.Error("campaign job failed, leaving message for redelivery", "campaign_id", job.CampaignID, "err", err)
	}
}

func (c *Consumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		log.Warn("failed to delete queue message", "message_id", aws.ToString(msg.MessageId), "err", err)
	}
}
