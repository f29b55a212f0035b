package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/service/ledger"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var (
	ts         = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	sendFields = []string{"id", "provider_message_id", "template_key", "campaign_id", "recipient_email",
		"recipient_id", "recipient_role", "recipient_country", "subject", "status", "metadata",
		"delivered_at", "opened_at", "clicked_at", "bounced_at", "created_at", "updated_at"}
)

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}

func TestRecordSends_BulkInsert(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectExec("INSERT INTO email_sends .* FROM unnest").
		WithArgs(anyArgs(12)...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.RecordSends(context.Background(), []domain.SendRecord{
		{ID: "a", TemplateKey: "welcome", RecipientEmail: "a@x.test", Status: domain.StatusSent, CreatedAt: ts},
		{ID: "b", TemplateKey: "welcome", RecipientEmail: "b@x.test", Status: domain.StatusFailed,
			Metadata: map[string]any{"error": "boom"}, CreatedAt: ts},
	})
	require.NoError(t, err)
}

func TestRecordSends_Empty(t *testing.T) {
	db, _ := setupTestDB(t)
	require.NoError(t, NewLedgerRepo(db).RecordSends(context.Background(), nil))
}

func TestFindByProviderMessageID(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectQuery("FROM email_sends\\s+WHERE provider_message_id = \\$1").
		WithArgs("re_1").
		WillReturnRows(sqlmock.NewRows(sendFields).AddRow(
			"send-1", "re_1", "welcome", "", "ana@x.test", "u1", "player", "ES", "Hi", "delivered",
			[]byte(`{"batch_id":"b1"}`), ts, nil, nil, nil, ts, ts))

	rec, err := repo.FindByProviderMessageID(context.Background(), "re_1")
	require.NoError(t, err)
	assert.Equal(t, "send-1", rec.ID)
	assert.Equal(t, domain.StatusDelivered, rec.Status)
	assert.Equal(t, "b1", rec.Metadata["batch_id"])
	require.NotNil(t, rec.DeliveredAt)
	assert.Equal(t, ts, *rec.DeliveredAt)
	assert.Nil(t, rec.OpenedAt)
}

func TestFindByProviderMessageID_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery("FROM email_sends").WithArgs("missing").WillReturnRows(sqlmock.NewRows(sendFields))

	_, err := NewLedgerRepo(db).FindByProviderMessageID(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAdvanceStatus(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewLedgerRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND CASE status WHEN 'failed' THEN -1")).
		WithArgs("send-1", "clicked", true, true, ts, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.AdvanceStatus(context.Background(), "send-1",
		domain.StatusUpdate{Status: domain.StatusClicked, OccurredAt: ts})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestAdvanceStatus_NotApplied(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("UPDATE email_sends").
		WithArgs("send-1", "delivered", true, false, ts, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := NewLedgerRepo(db).AdvanceStatus(context.Background(), "send-1",
		domain.StatusUpdate{Status: domain.StatusDelivered, OccurredAt: ts})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestStatusPriorityExpr(t *testing.T) {
	for _, s := range domain.OrderedStatuses() {
		assert.Contains(t, statusPriorityExpr, "'"+string(s)+"'")
	}
	assert.Contains(t, statusPriorityExpr, "WHEN 'unsubscribed' THEN 12")
}

func TestAppendEvent(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("INSERT INTO email_events").
		WithArgs("ev-1", "", "re_9", "opened", ts, `{"type":"email.opened"}`, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewLedgerRepo(db).AppendEvent(context.Background(), domain.DeliveryEvent{
		ID: "ev-1", ProviderMessageID: "re_9", EventType: domain.StatusOpened,
		OccurredAt: ts, RawPayload: json.RawMessage(`{"type":"email.opened"}`), CreatedAt: ts,
	})
	require.NoError(t, err)
}

func TestListSends_Filters(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE campaign_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("c-1", "bounced", 50, 0).
		WillReturnRows(sqlmock.NewRows(sendFields).AddRow(
			"send-2", "", "digest", "c-1", "b@x.test", "", "", "", "Digest", "bounced",
			nil, nil, nil, nil, ts, ts, ts))

	out, err := NewLedgerRepo(db).ListSends(context.Background(),
		ledger.SendFilter{CampaignID: "c-1", Status: domain.StatusBounced})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c-1", out[0].CampaignID)
	assert.Nil(t, out[0].Metadata)
	assert.Equal(t, ts, *out[0].BouncedAt)
}

func TestListEvents(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery("FROM email_events").
		WithArgs("send-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "send_id", "provider_message_id", "event_type", "occurred_at", "raw_payload", "created_at"}).
			AddRow("ev-1", "send-1", "re_1", "delivered", ts, []byte(`{}`), ts).
			AddRow("ev-2", "send-1", "re_1", "opened", ts.Add(time.Minute), []byte(`{}`), ts))

	out, err := NewLedgerRepo(db).ListEvents(context.Background(), "send-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.StatusOpened, out[1].EventType)
}

func TestFetchActiveTemplate(t *testing.T) {
	db, mock := setupTestDB(t)

	blocks := `[{"type":"heading","text":"Hi {{name}}"},{"type":"button","label":"Go","url":"{{url}}"}]`
	vars := `[{"name":"name","required":true},{"name":"url","required":false}]`
	mock.ExpectQuery("FROM email_templates").
		WithArgs("welcome").
		WillReturnRows(sqlmock.NewRows([]string{"key", "subject_template", "content_blocks", "text_template", "declared_variables", "is_active"}).
			AddRow("welcome", "Welcome {{name}}", []byte(blocks), "", []byte(vars), true))

	tpl, err := NewTemplateRepo(db).FetchActiveTemplate(context.Background(), "welcome")
	require.NoError(t, err)
	require.NotNil(t, tpl)
	require.Len(t, tpl.ContentBlocks, 2)
	assert.Equal(t, domain.Heading{Text: "Hi {{name}}"}, tpl.ContentBlocks[0])
	assert.Equal(t, []string{"name"}, tpl.RequiredVariables())
}

func TestFetchActiveTemplate_Missing(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery("FROM email_templates").WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"key"}))

	tpl, err := NewTemplateRepo(db).FetchActiveTemplate(context.Background(), "gone")
	require.NoError(t, err)
	assert.Nil(t, tpl)
}

func TestListRecipients(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("role = ANY($1) AND is_test = true")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "country", "is_test"}).
			AddRow("u1", "qa@x.test", "coach", "US", true))

	out, err := NewRecipientRepo(db).ListRecipients(context.Background(), domain.Audience{Roles: []string{"coach"}, TestOnly: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.RecipientInfo{Email: "qa@x.test", RecipientID: "u1", Role: "coach", Country: "US"}, out[0].Info())
}

func TestWithConnectTimeout(t *testing.T) {
	assert.Equal(t, "postgres://h/db?connect_timeout=5", withConnectTimeout("postgres://h/db"))
	assert.Equal(t, "postgres://h/db?sslmode=disable&connect_timeout=5", withConnectTimeout("postgres://h/db?sslmode=disable"))
	assert.Equal(t, "host=h dbname=db", withConnectTimeout("host=h dbname=db"))
}
