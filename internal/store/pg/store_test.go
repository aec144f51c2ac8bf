package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"custodia.org/internal/asset"
	"custodia.org/internal/audit"
	"custodia.org/internal/auth"
	"custodia.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPrincipalByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cols := []string{"id", "first_name", "last_name", "email", "password_hash",
		"role_id", "approved", "totp_secret", "mfa_enrolled_at", "sign_in_count",
		"failed_login_attempts", "current_sign_in_ip", "last_sign_in_ip",
		"last_login_at", "created_at", "updated_at"}
	mock.ExpectQuery("select(.|\n)*from principals where email").
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"p-1", "Ada", "Lovelace", "user@example.com", "hash", "role-1",
			true, "SECRET", now, 3, 0, "10.0.0.1", "10.0.0.2", now, now, now))

	p, err := store.PrincipalByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("PrincipalByEmail: %v", err)
	}
	if p.ID != "p-1" || p.SignInCount != 3 || !p.Enrolled() {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.CurrentSignInIP != "10.0.0.1" || p.LastSignInIP != "10.0.0.2" {
		t.Fatalf("ip history mismatch: %+v", p)
	}
	expectationsMet(t, mock)
}

func TestPrincipalByIDNullFields(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cols := []string{"id", "first_name", "last_name", "email", "password_hash",
		"role_id", "approved", "totp_secret", "mfa_enrolled_at", "sign_in_count",
		"failed_login_attempts", "current_sign_in_ip", "last_sign_in_ip",
		"last_login_at", "created_at", "updated_at"}
	mock.ExpectQuery("select(.|\n)*from principals where id").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"p-1", "Ada", "Lovelace", "user@example.com", "hash", "role-1",
			false, nil, nil, 0, 0, nil, nil, nil, now, now))

	p, err := store.PrincipalByID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("PrincipalByID: %v", err)
	}
	if p.Enrolled() || p.TOTPSecret != "" || p.CurrentSignInIP != "" {
		t.Fatalf("null columns must scan as zero values: %+v", p)
	}
	expectationsMet(t, mock)
}

func TestPrincipalByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select(.|\n)*from principals where id").
		WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	if _, err := store.PrincipalByID(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRecordSignInSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update principals set(.|\n)*sign_in_count = sign_in_count \\+ 1").
		WithArgs("p-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RecordSignInSuccess(context.Background(), "p-1", "10.0.0.9"); err != nil {
		t.Fatalf("RecordSignInSuccess: %v", err)
	}
	expectationsMet(t, mock)
}

func TestTouchMissingPrincipal(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update principals set approved = true").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.ApprovePrincipal(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestReadWritePermissions(t *testing.T) {
	store, mock := newMockStore(t)
	serialized := []byte(`{"image":["view_image"]}`)

	mock.ExpectQuery("select permissions from roles").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"permissions"}).AddRow(serialized))
	raw, err := store.ReadPermissions(context.Background(), "role-1")
	if err != nil {
		t.Fatalf("ReadPermissions: %v", err)
	}
	if string(raw) != string(serialized) {
		t.Fatalf("unexpected document: %s", raw)
	}

	mock.ExpectQuery("select permissions from roles").
		WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	if _, err := store.ReadPermissions(context.Background(), "ghost"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec("update roles set permissions").
		WithArgs("role-1", serialized).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.WritePermissions(context.Background(), "role-1", serialized); err != nil {
		t.Fatalf("WritePermissions: %v", err)
	}
	expectationsMet(t, mock)
}

func TestAppendAndReadEvents(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := audit.Event{
		RequestID:   "req-1",
		Endpoint:    "/v1/assets/image",
		OriginIP:    "10.0.0.1",
		PrincipalID: "p-1",
		Success:     true,
		OccurredAt:  now,
	}

	mock.ExpectExec("insert into audit_events").
		WithArgs(sqlmock.AnyArg(), event.Endpoint, event.OriginIP, event.PrincipalID, true, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.AppendEvent(context.Background(), event); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	mock.ExpectQuery("select(.|\n)*from audit_events(.|\n)*where principal_id").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "endpoint", "origin_ip", "principal_id", "success", "occurred_at"}).
			AddRow("req-1", "/v1/assets/image", "10.0.0.1", "p-1", true, now))
	events, err := store.ReadEventsForPrincipal(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("ReadEventsForPrincipal: %v", err)
	}
	if len(events) != 1 || events[0].RequestID != "req-1" {
		t.Fatalf("unexpected events: %+v", events)
	}

	mock.ExpectQuery("select distinct principal_id from audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"principal_id"}).AddRow("p-1").AddRow("p-2"))
	ids, err := store.ReadAllPrincipalIDs(context.Background())
	if err != nil {
		t.Fatalf("ReadAllPrincipalIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	expectationsMet(t, mock)
}

func TestAppendEventRejectsIncomplete(t *testing.T) {
	store, _ := newMockStore(t)
	err := store.AppendEvent(context.Background(), audit.Event{Endpoint: "/v1/x"})
	if !errors.Is(err, audit.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestAssetRecordLifecycle(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &asset.Record{
		ID:         "asset-1",
		Kind:       rbac.ResourceConfidential,
		Title:      "codes",
		MimeType:   "text/plain",
		Checksum:   "abc",
		Nonce:      []byte{1, 2, 3},
		Tag:        []byte{4, 5, 6},
		KeyVersion: "v1",
		CreatedBy:  "p-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectExec("insert into assets").
		WithArgs("asset-1", "confidential", "codes", sqlmock.AnyArg(), "text/plain",
			"abc", rec.Nonce, rec.Tag, sqlmock.AnyArg(), "p-1", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	cols := []string{"id", "kind", "title", "description", "mime_type", "checksum",
		"nonce", "tag", "key_version", "created_by", "updated_by", "deleted_by",
		"created_at", "updated_at", "deleted_at"}
	mock.ExpectQuery("select(.|\n)*from assets where id").
		WithArgs("asset-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"asset-1", "confidential", "codes", nil, "text/plain", "abc",
			rec.Nonce, rec.Tag, "v1", "p-1", nil, nil, now, now, nil))
	got, err := store.RecordByID(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("RecordByID: %v", err)
	}
	if got.Kind != rbac.ResourceConfidential || got.KeyVersion != "v1" || got.Deleted() {
		t.Fatalf("unexpected record: %+v", got)
	}

	mock.ExpectExec("update assets set deleted_by").
		WithArgs("asset-1", "p-9", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.SoftDeleteRecord(context.Background(), "asset-1", "p-9", now); err != nil {
		t.Fatalf("SoftDeleteRecord: %v", err)
	}

	// A second delete matches no live row.
	mock.ExpectExec("update assets set deleted_by").
		WithArgs("asset-1", "p-9", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.SoftDeleteRecord(context.Background(), "asset-1", "p-9", now); !errors.Is(err, asset.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestListRecords(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "kind", "title", "description", "mime_type", "checksum",
		"nonce", "tag", "key_version", "created_by", "updated_by", "deleted_by",
		"created_at", "updated_at", "deleted_at"}
	mock.ExpectQuery("select(.|\n)*from assets(.|\n)*where kind").
		WithArgs("image", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a-2", "image", "b", nil, "image/png", "c2", nil, nil, nil, "p-1", nil, nil, now, now, nil).
			AddRow("a-1", "image", "a", nil, "image/png", "c1", nil, nil, nil, "p-1", nil, nil, now.Add(-time.Hour), now, nil))

	records, err := store.ListRecords(context.Background(), rbac.ResourceImage, 10, 0)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 || records[0].ID != "a-2" {
		t.Fatalf("unexpected records: %+v", records)
	}
	expectationsMet(t, mock)
}
