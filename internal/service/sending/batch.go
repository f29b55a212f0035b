package sending

import (
	"context"
	"fmt"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/metrics"
	"github.com/courtside/mailer/internal/provider"
)

// BatchRequest is one logical bulk send.
type BatchRequest struct {
	Recipients  []domain.RecipientInfo
	Subject     string
	HTML        string
	Text        string
	TemplateKey string
	CampaignID  string
	// Personalize, when set, renders per-recipient content.
	Personalize PersonalizeFunc
}

// BatchStats summarises a batch send.
type BatchStats struct {
	TotalRecipients int   `json:"total_recipients"`
	Skipped         int   `json:"skipped"`
	Sent            int   `json:"sent"`
	Failed          int   `json:"failed"`
	DurationMs      int64 `json:"duration_ms"`
	BatchAPICalls   int   `json:"batch_api_calls"`
	Retries         int   `json:"retries"`
}

// BatchResult lists per-recipient outcomes of a batch send. Every allowed
// recipient appears exactly once in Sent or Failed.
type BatchResult struct {
	Sent               []string   `json:"sent"`
	Failed             []string   `json:"failed"`
	ProviderMessageIDs []string   `json:"provider_message_ids"`
	Stats              BatchStats `json:"stats"`
}

type content struct {
	subject, html, text string
}

// SendTrackedBatch sends to many recipients in sequential chunks. A chunk
// that fails after retries marks its recipients failed and the next chunk
// still runs. Ledger rows are bulk-inserted per chunk.
func (s *Service) SendTrackedBatch(ctx context.Context, req BatchRequest) BatchResult {
	start := s.opts.Now()
	result := BatchResult{Sent: []string{}, Failed: []string{}, ProviderMessageIDs: []string{}}

	allowed, dropped := s.whitelist.Filter(req.Recipients)
	if len(dropped) > 0 {
		log.Info("recipients not on allow-list, skipping", "template_key", req.TemplateKey,
			"campaign_id", req.CampaignID, "skipped", len(dropped))
		metrics.RecordSends("batch", "skipped", len(dropped))
	}
	result.Stats.TotalRecipients = len(allowed)
	result.Stats.Skipped = len(dropped)
	if len(allowed) == 0 {
		return result
	}

	batchID := s.opts.NewID()
	shared := content{subject: req.Subject, html: req.HTML, text: req.Text}
	chunks := chunkRecipients(allowed, s.opts.ChunkSize)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			s.abandon(ctx, req, chunks[i:], shared, err, &result)
			break
		}

		s.sendChunk(ctx, req, batchID, i, chunk, shared, &result)

		if i < len(chunks)-1 && s.opts.ChunkDelay > 0 {
			if err := s.opts.Sleep(ctx, s.opts.ChunkDelay); err != nil {
				s.abandon(ctx, req, chunks[i+1:], shared, err, &result)
				break
			}
		}
	}

	elapsed := s.opts.Now().Sub(start)
	result.Stats.DurationMs = elapsed.Milliseconds()
	metrics.ObserveBatchDuration(elapsed)
	metrics.RecordSends("batch", "sent", result.Stats.Sent)
	metrics.RecordSends("batch", "failed", result.Stats.Failed)

	log.Info("batch send complete", "template_key", req.TemplateKey, "campaign_id", req.CampaignID,
		"batch_id", batchID, "total", result.Stats.TotalRecipients, "sent", result.Stats.Sent,
		"failed", result.Stats.Failed, "api_calls", result.Stats.BatchAPICalls,
		"duration_ms", result.Stats.DurationMs)
	return result
}

func (s *Service) sendChunk(ctx context.Context, req BatchRequest, batchID string, index int, chunk []domain.RecipientInfo, shared content, result *BatchResult) {
	contents := make([]content, len(chunk))
	emails := make([]provider.Email, len(chunk))
	for j, r := range chunk {
		contents[j] = s.personalize(ctx, req, r, shared)
		emails[j] = *s.buildEmail(r.Email, contents[j].subject, contents[j].html, contents[j].text, req.TemplateKey, req.CampaignID, false)
	}

	opts := provider.BatchOptions{IdempotencyKey: chunkIdempotencyKey(req, batchID, index)}
	var resp *provider.BatchResponse
	policy := s.policy(s.opts.Batch, "batch")
	outcome, err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := s.provider.SendBatch(ctx, emails, opts)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	result.Stats.BatchAPICalls++
	if outcome.Attempts > 1 {
		result.Stats.Retries += outcome.Attempts - 1
	}

	records := make([]domain.SendRecord, 0, len(chunk))
	meta := func(extra map[string]any) map[string]any {
		m := map[string]any{"batch_id": batchID, "chunk": index}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	if err != nil {
		metrics.RecordProviderAttempt("batch", "error")
		metrics.RecordBatchChunk("failed")
		log.Error("batch chunk failed", "template_key", req.TemplateKey, "campaign_id", req.CampaignID,
			"chunk", index, "recipients", len(chunk), "attempts", outcome.Attempts, "err", err)
		reason := "batch send failed: " + err.Error()
		for j, r := range chunk {
			rec := s.newRecord(r, req.TemplateKey, req.CampaignID, contents[j].subject, domain.StatusFailed, "")
			rec.Metadata = meta(map[string]any{"error": reason})
			records = append(records, rec)
			result.Failed = append(result.Failed, r.Email)
			result.Stats.Failed++
		}
		s.record(ctx, records)
		return
	}

	metrics.RecordProviderAttempt("batch", "ok")
	metrics.RecordBatchChunk("ok")

	rejected := make(map[int]string, len(resp.Errors))
	for _, e := range resp.Errors {
		if e.Index >= 0 && e.Index < len(chunk) {
			rejected[e.Index] = e.Message
		}
	}
	ids := matchProviderIDs(len(chunk), rejected, resp.Data)

	for j, r := range chunk {
		if reason, bad := rejected[j]; bad {
			rec := s.newRecord(r, req.TemplateKey, req.CampaignID, contents[j].subject, domain.StatusFailed, "")
			rec.Metadata = meta(map[string]any{"error": reason})
			records = append(records, rec)
			result.Failed = append(result.Failed, r.Email)
			result.Stats.Failed++
			continue
		}
		rec := s.newRecord(r, req.TemplateKey, req.CampaignID, contents[j].subject, domain.StatusSent, ids[j])
		rec.Metadata = meta(nil)
		records = append(records, rec)
		result.Sent = append(result.Sent, r.Email)
		if ids[j] != "" {
			result.ProviderMessageIDs = append(result.ProviderMessageIDs, ids[j])
		}
		result.Stats.Sent++
	}
	if len(rejected) > 0 {
		log.Warn("batch chunk partially rejected", "template_key", req.TemplateKey, "chunk", index,
			"rejected", len(rejected), "recipients", len(chunk))
	}
	s.record(ctx, records)
}

// matchProviderIDs maps provider ids to chunk positions. The provider lists
// ids of accepted messages in submission order; a full-length list is taken
// as index-aligned.
func matchProviderIDs(n int, rejected map[int]string, data []provider.SendResponse) []string {
	ids := make([]string, n)
	if len(data) == n {
		for j := range ids {
			if _, bad := rejected[j]; !bad {
				ids[j] = data[j].ID
			}
		}
		return ids
	}
	next := 0
	for j := range ids {
		if _, bad := rejected[j]; bad {
			continue
		}
		if next < len(data) {
			ids[j] = data[next].ID
			next++
		}
	}
	return ids
}

func (s *Service) personalize(ctx context.Context, req BatchRequest, r domain.RecipientInfo, shared content) content {
	if req.Personalize == nil {
		return shared
	}
	rendered, err := req.Personalize(ctx, r)
	if err != nil || rendered == nil {
		log.Warn("personalization unavailable, using shared content", "template_key", req.TemplateKey,
			"recipient_email", r.Email, "err", err)
		return shared
	}
	return content{subject: rendered.Subject, html: rendered.HTML, text: rendered.Text}
}

// abandon marks recipients of chunks that were never submitted as failed.
func (s *Service) abandon(ctx context.Context, req BatchRequest, chunks [][]domain.RecipientInfo, shared content, cause error, result *BatchResult) {
	var records []domain.SendRecord
	for _, chunk := range chunks {
		for _, r := range chunk {
			rec := s.newRecord(r, req.TemplateKey, req.CampaignID, shared.subject, domain.StatusFailed, "")
			rec.Metadata = map[string]any{"error": "batch aborted: " + cause.Error()}
			records = append(records, rec)
			result.Failed = append(result.Failed, r.Email)
			result.Stats.Failed++
		}
	}
	log.Warn("batch aborted before completion", "template_key", req.TemplateKey, "unsent", len(records), "err", cause)
	s.record(ctx, records)
}

// chunkIdempotencyKey names one chunk for the provider. Campaign chunks are
// keyed by campaign, template and position so a redelivered job cannot send
// the same chunk twice; ad-hoc batches fall back to the per-call batch id.
func chunkIdempotencyKey(req BatchRequest, batchID string, index int) string {
	if req.CampaignID == "" {
		return fmt.Sprintf("%s-%d", batchID, index)
	}
	return fmt.Sprintf("%s-%s-%d", req.CampaignID, req.TemplateKey, index)
}

func chunkRecipients(recipients []domain.RecipientInfo, size int) [][]domain.RecipientInfo {
	chunks := make([][]domain.RecipientInfo, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := min(start+size, len(recipients))
		chunks = append(chunks, recipients[start:end])
	}
	return chunks
}
