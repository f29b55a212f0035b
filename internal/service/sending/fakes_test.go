package sending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/provider"
)

type fakeProvider struct {
	mu sync.Mutex

	sendErrs  []error
	sendCalls []*provider.Email

	// batchFn decides the reply for the n-th batch call (0-based).
	batchFn    func(n int, emails []provider.Email) (*provider.BatchResponse, error)
	batchCalls [][]provider.Email
	batchOpts  []provider.BatchOptions
}

func (f *fakeProvider) Send(_ context.Context, email *provider.Email) (*provider.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sendCalls)
	f.sendCalls = append(f.sendCalls, email)
	if n < len(f.sendErrs) && f.sendErrs[n] != nil {
		return nil, f.sendErrs[n]
	}
	return &provider.SendResponse{ID: fmt.Sprintf("msg_%d", n+1)}, nil
}

func (f *fakeProvider) SendBatch(_ context.Context, emails []provider.Email, opts provider.BatchOptions) (*provider.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.batchCalls)
	f.batchCalls = append(f.batchCalls, emails)
	f.batchOpts = append(f.batchOpts, opts)
	if f.batchFn != nil {
		return f.batchFn(n, emails)
	}
	return acceptAll(n, emails), nil
}

func acceptAll(call int, emails []provider.Email) *provider.BatchResponse {
	resp := &provider.BatchResponse{}
	for i := range emails {
		resp.Data = append(resp.Data, provider.SendResponse{ID: fmt.Sprintf("b%d_%d", call, i)})
	}
	return resp
}

type fakeLedger struct {
	mu      sync.Mutex
	records []domain.SendRecord
	writes  int
	err     error
}

func (l *fakeLedger) RecordSends(_ context.Context, records []domain.SendRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, records...)
	return nil
}

func (l *fakeLedger) byStatus(s domain.SendStatus) []domain.SendRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.SendRecord
	for _, r := range l.records {
		if r.Status == s {
			out = append(out, r)
		}
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.sleeps {
		if v == d {
			n++
		}
	}
	return n
}

type testEnv struct {
	provider *fakeProvider
	ledger   *fakeLedger
	sleeps   *sleepRecorder
	svc      *Service
}

func newTestEnv(whitelist *Whitelist) *testEnv {
	env := &testEnv{provider: &fakeProvider{}, ledger: &fakeLedger{}, sleeps: &sleepRecorder{}}
	opts := DefaultOptions()
	opts.From = "Courtside <notifications@courtside.test>"
	opts.UnsubscribeURL = "https://courtside.test/settings/notifications"
	opts.Sleep = env.sleeps.Sleep
	opts.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	ids := 0
	opts.NewID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	env.svc = NewService(env.provider, env.ledger, whitelist, opts)
	return env
}

func recipients(n int) []domain.RecipientInfo {
	out := make([]domain.RecipientInfo, n)
	for i := range out {
		out[i] = domain.RecipientInfo{Email: fmt.Sprintf("player%03d@courtside.test", i), RecipientID: fmt.Sprintf("u%d", i)}
	}
	return out
}
