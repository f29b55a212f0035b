package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher enqueues campaign jobs.
type Publisher struct {
	client   QueueAPI
	queueURL string
	now      func() time.Time
}

// NewPublisher creates a publisher for queueURL.
func NewPublisher(client QueueAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, now: time.Now}
}

// Publish validates and enqueues job and returns the queue message id.
func (p *Publisher) Publish(ctx context.Context, job Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = p.now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal campaign job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"campaign_id": {DataType: aws.String("String"), StringValue: aws.String(job.CampaignID)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("publish campaign %s: %w", job.CampaignID, err)
	}
	log.Info("campaign job published", "campaign_id", job.CampaignID, "template_key", job.TemplateKey,
		"test_only", job.TestOnly)
	return aws.ToString(out.MessageId), nil
}
