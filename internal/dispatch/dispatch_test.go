package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/distlock"
	"github.com/courtside/mailer/internal/render"
	"github.com/courtside/mailer/internal/service/sending"
)

type fakeQueue struct {
	mu       sync.Mutex
	sent     []*sqs.SendMessageInput
	inbox    []types.Message
	deleted  []string
	recvErr  error
	received int
}

func (q *fakeQueue) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (q *fakeQueue) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.received++
	if q.recvErr != nil {
		return nil, q.recvErr
	}
	msgs := q.inbox
	q.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (q *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeDirectory struct {
	recipients []domain.Recipient
	audiences  []domain.Audience
}

func (d *fakeDirectory) ListRecipients(_ context.Context, a domain.Audience) ([]domain.Recipient, error) {
	d.audiences = append(d.audiences, a)
	return d.recipients, nil
}

type fakeSender struct {
	batches []sending.BatchRequest
	singles []sending.Message
	onBatch func(ctx context.Context)
}

func (s *fakeSender) SendTracked(_ context.Context, msg sending.Message) sending.SendResult {
	s.singles = append(s.singles, msg)
	return sending.SendResult{Success: true}
}

func (s *fakeSender) SendTrackedBatch(ctx context.Context, req sending.BatchRequest) sending.BatchResult {
	s.batches = append(s.batches, req)
	if s.onBatch != nil {
		s.onBatch(ctx)
	}
	return sending.BatchResult{Stats: sending.BatchStats{TotalRecipients: len(req.Recipients), Sent: len(req.Recipients)}}
}

type fakeLock struct {
	held     *bool
	released bool
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	if *l.held {
		return false, nil
	}
	*l.held = true
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	*l.held = false
	l.released = true
	return nil
}

type fakeLocker struct {
	held bool
	keys []string
}

func (f *fakeLocker) New(key string) distlock.DistLock {
	f.keys = append(f.keys, key)
	return &fakeLock{held: &f.held}
}

func (f *fakeLocker) TTL() time.Duration { return time.Minute }

type memTemplates map[string]*domain.Template

func (m memTemplates) FetchActiveTemplate(_ context.Context, key string) (*domain.Template, error) {
	return m[key], nil
}

func newRenderer() *render.Renderer {
	return render.NewRenderer(memTemplates{
		"showcase": {
			Key:             "showcase",
			SubjectTemplate: "{{event}} for {{recipient_role}}s",
			ContentBlocks:   domain.Blocks{domain.Paragraph{Text: "Hello {{recipient_email}}"}},
			IsActive:        true,
		},
	}, render.Options{SiteURL: "https://courtside.test", Now: func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }})
}

type fixture struct {
	dir    *fakeDirectory
	sender *fakeSender
	locks  *fakeLocker
	proc   *Processor
}

func newFixture() *fixture {
	f := &fixture{
		dir: &fakeDirectory{recipients: []domain.Recipient{
			{ID: "u1", Email: "ana@x.test", Role: "player"},
			{ID: "u2", Email: "qa@x.test", Role: "coach", IsTest: true},
		}},
		sender: &fakeSender{},
		locks:  &fakeLocker{},
	}
	f.proc = NewProcessor(f.dir, newRenderer(), f.sender, f.locks)
	return f
}

func showcaseJob() Job {
	return Job{CampaignID: "c-7", TemplateKey: "showcase", Variables: map[string]string{"event": "Spring showcase"}}
}

func TestProcess_Campaign(t *testing.T) {
	f := newFixture()

	report, err := f.proc.Process(context.Background(), showcaseJob())
	require.NoError(t, err)

	assert.Equal(t, []string{"campaign:c-7"}, f.locks.keys)
	assert.False(t, f.locks.held, "lock released after the run")
	assert.Equal(t, 2, report.Recipients)
	assert.Equal(t, 2, report.Sent)

	require.Len(t, f.sender.batches, 1)
	req := f.sender.batches[0]
	assert.Equal(t, "c-7", req.CampaignID)
	assert.Equal(t, "Spring showcase for s", req.Subject)
	require.Len(t, req.Recipients, 2)
	require.NotNil(t, req.Personalize)

	email, err := req.Personalize(context.Background(), req.Recipients[0])
	require.NoError(t, err)
	assert.Equal(t, "Spring showcase for players", email.Subject)
	assert.Contains(t, email.HTML, "Hello ana@x.test")
}

func TestProcess_TestOnly(t *testing.T) {
	f := newFixture()
	job := showcaseJob()
	job.TestOnly = true

	report, err := f.proc.Process(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, f.dir.audiences[0].TestOnly)
	assert.Empty(t, f.sender.batches)
	require.Len(t, f.sender.singles, 1)
	assert.True(t, f.sender.singles[0].IsTest)
	assert.Equal(t, "qa@x.test", f.sender.singles[0].To.Email)
	assert.True(t, report.Test)
	assert.Equal(t, 1, report.Sent)
}

func TestProcess_LockHeld(t *testing.T) {
	f := newFixture()
	f.locks.held = true

	_, err := f.proc.Process(context.Background(), showcaseJob())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Empty(t, f.sender.batches)
}

func TestProcess_TemplateMissing(t *testing.T) {
	f := newFixture()
	job := showcaseJob()
	job.TemplateKey = "retired"

	_, err := f.proc.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrTemplateMissing)
	assert.False(t, f.locks.held)
}

func redisLocks(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *distlock.Factory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, distlock.NewFactory(client, nil, ttl)
}

func TestProcess_LockRefreshedDuringLongBatch(t *testing.T) {
	mr, locks := redisLocks(t, 300*time.Millisecond)
	f := newFixture()
	f.proc = NewProcessor(f.dir, newRenderer(), f.sender, locks)

	key := "lock:" + distlock.CampaignKey("c-7")
	f.sender.onBatch = func(ctx context.Context) {
		mr.FastForward(200 * time.Millisecond)
		require.Eventually(t, func() bool { return mr.TTL(key) > 200*time.Millisecond },
			2*time.Second, 10*time.Millisecond, "lock refreshed while the batch runs")
		mr.FastForward(200 * time.Millisecond)
		assert.True(t, mr.Exists(key), "lock outlives its original ttl")
		assert.NoError(t, ctx.Err())
	}

	_, err := f.proc.Process(context.Background(), showcaseJob())
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "released after the batch")
}

func TestProcess_LostLockCancelsBatch(t *testing.T) {
	mr, locks := redisLocks(t, 90*time.Millisecond)
	f := newFixture()
	f.proc = NewProcessor(f.dir, newRenderer(), f.sender, locks)

	key := "lock:" + distlock.CampaignKey("c-7")
	var cause error
	f.sender.onBatch = func(ctx context.Context) {
		require.NoError(t, mr.Set(key, "another-worker"))
		select {
		case <-ctx.Done():
			cause = context.Cause(ctx)
		case <-time.After(2 * time.Second):
		}
	}

	_, err := f.proc.Process(context.Background(), showcaseJob())
	require.NoError(t, err)
	assert.ErrorIs(t, cause, distlock.ErrNotOwned)
	got, _ := mr.Get(key)
	assert.Equal(t, "another-worker", got, "new holder's lock left alone")
}

func TestJobValidate(t *testing.T) {
	assert.NoError(t, showcaseJob().Validate())
	err := Job{}.Validate()
	assert.ErrorIs(t, err, ErrInvalidJob)
	assert.ErrorContains(t, err, "campaign_id, template_key")
}

func TestPublisher(t *testing.T) {
	q := &fakeQueue{}
	p := NewPublisher(q, "https://sqs.test/q")
	p.now = func() time.Time { return time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC) }

	id, err := p.Publish(context.Background(), showcaseJob())
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)

	require.Len(t, q.sent, 1)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(q.sent[0].MessageBody)), &job))
	assert.Equal(t, "c-7", job.CampaignID)
	assert.Equal(t, p.now(), job.EnqueuedAt)
	assert.Equal(t, "c-7", aws.ToString(q.sent[0].MessageAttributes["campaign_id"].StringValue))

	_, err = p.Publish(context.Background(), Job{CampaignID: "c-8"})
	assert.ErrorIs(t, err, ErrInvalidJob)
	assert.Len(t, q.sent, 1)
}

type scriptedProcessor struct {
	errs map[string]error
	jobs []Job
}

func (s *scriptedProcessor) Process(_ context.Context, job Job) (*Report, error) {
	s.jobs = append(s.jobs, job)
	if err := s.errs[job.CampaignID]; err != nil {
		return nil, err
	}
	return &Report{CampaignID: job.CampaignID}, nil
}

func message(handle, body string) types.Message {
	return types.Message{MessageId: aws.String(handle), ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func jobBody(campaignID string) string {
	b, _ := json.Marshal(Job{CampaignID: campaignID, TemplateKey: "showcase"})
	return string(b)
}

func TestConsumer_PollOnce(t *testing.T) {
	q := &fakeQueue{inbox: []types.Message{
		message("ok", jobBody("c-ok")),
		message("bad", "{not json"),
		message("locked", jobBody("c-locked")),
		message("missing", jobBody("c-missing")),
		message("transient", jobBody("c-transient")),
	}}
	proc := &scriptedProcessor{errs: map[string]error{
		"c-locked":    ErrLockHeld,
		"c-missing":   ErrTemplateMissing,
		"c-transient": errors.New("directory timeout"),
	}}
	c := NewConsumer(q, "https://sqs.test/q", proc, ConsumerOptions{})

	require.NoError(t, c.PollOnce(context.Background()))

	assert.Len(t, proc.jobs, 4)
	assert.ElementsMatch(t, []string{"ok", "bad", "missing"}, q.deleted)
}

func TestConsumer_RunBacksOffOnReceiveError(t *testing.T) {
	q := &fakeQueue{recvErr: errors.New("throttled")}
	ctx, cancel := context.WithCancel(context.Background())
	var sleeps []time.Duration
	c := NewConsumer(q, "https://sqs.test/q", &scriptedProcessor{}, ConsumerOptions{
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			if len(sleeps) == 2 {
				cancel()
			}
			return nil
		},
	})

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps)
	assert.Equal(t, 2, q.received)
}
