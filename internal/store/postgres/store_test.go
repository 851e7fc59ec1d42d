package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/roach88/retrofix/internal/correction"
	"github.com/roach88/retrofix/internal/field"
	"github.com/roach88/retrofix/internal/store"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() failed: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock, WithNow(func() time.Time { return baseTime })), mock
}

func expectationsWereMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func testCommit(expected uint64) store.Commit {
	return store.Commit{
		EntityID:        "inv-1",
		EntityType:      "invoice",
		BaselineVersion: expected,
		ExpectedVersion: expected,
		Events: []correction.Event{{
			EventID:   "ev-1",
			Field:     "amount",
			OldValue:  field.Number(100),
			NewValue:  field.Number(120),
			ValidTime: baseTime.AddDate(0, -1, 0),
			ActorID:   "tester",
			Reason:    "invoice amount was mistyped",
		}},
	}
}

func expectRegisterAndLock(mock pgxmock.PgxPoolIface, version int64, last *time.Time) {
	expectRegisterAndLockAs(mock, "invoice", version, last)
}

// expectRegisterAndLockAs answers the lock query with an entity registered
// under registeredType.
func expectRegisterAndLockAs(mock pgxmock.PgxPoolIface, registeredType string, version int64, last *time.Time) {
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO entities`).
		WithArgs("inv-1", "invoice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT entity_type, version, last_transaction_time FROM entities`).
		WithArgs("inv-1").
		WillReturnRows(pgxmock.NewRows([]string{"entity_type", "version", "last_transaction_time"}).
			AddRow(registeredType, version, last))
}

func TestAppendBatch(t *testing.T) {
	later := baseTime.Add(time.Second)

	tests := []struct {
		name     string
		commit   store.Commit
		setup    func(mock pgxmock.PgxPoolIface)
		wantErr  error
		checkErr func(t *testing.T, err error)
		check    func(t *testing.T, res store.CommitResult)
	}{
		{
			name:   "registers and bumps",
			commit: testCommit(0),
			setup: func(mock pgxmock.PgxPoolIface) {
				expectRegisterAndLock(mock, 0, nil)
				mock.ExpectQuery(`INSERT INTO correction_events`).
					WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(41)))
				mock.ExpectExec(`UPDATE entities`).
					WithArgs(int64(1), baseTime, "inv-1").
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			},
			check: func(t *testing.T, res store.CommitResult) {
				if res.Version != 1 {
					t.Errorf("Version = %d, want 1", res.Version)
				}
				if !res.TransactionTime.Equal(baseTime) {
					t.Errorf("TransactionTime = %v, want %v", res.TransactionTime, baseTime)
				}
				if len(res.Events) != 1 || res.Events[0].Seq != 41 {
					t.Fatalf("Events = %+v, want one event with seq 41", res.Events)
				}
				ok, err := res.Events[0].VerifyDigest()
				if err != nil {
					t.Fatalf("VerifyDigest() failed: %v", err)
				}
				if !ok {
					t.Error("VerifyDigest() = false, want true")
				}
			},
		},
		{
			name:   "raises transaction time past last commit",
			commit: testCommit(2),
			setup: func(mock pgxmock.PgxPoolIface) {
				expectRegisterAndLock(mock, 2, &later)
				mock.ExpectQuery(`INSERT INTO correction_events`).
					WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(7)))
				mock.ExpectExec(`UPDATE entities`).
					WithArgs(int64(3), later.Add(time.Microsecond), "inv-1").
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			},
			check: func(t *testing.T, res store.CommitResult) {
				want := later.Add(time.Microsecond)
				if !res.TransactionTime.Equal(want) {
					t.Errorf("TransactionTime = %v, want %v", res.TransactionTime, want)
				}
				if res.Events[0].SourceVersion != 2 {
					t.Errorf("SourceVersion = %d, want 2", res.Events[0].SourceVersion)
				}
			},
		},
		{
			name:   "version conflict rolls back",
			commit: testCommit(1),
			setup: func(mock pgxmock.PgxPoolIface) {
				expectRegisterAndLock(mock, 3, &later)
				mock.ExpectRollback()
			},
			checkErr: func(t *testing.T, err error) {
				var vc *store.VersionConflictError
				if !errors.As(err, &vc) {
					t.Fatalf("error = %v, want *VersionConflictError", err)
				}
				if vc.Expected != 1 || vc.Actual != 3 {
					t.Errorf("conflict = %+v, want expected 1 actual 3", vc)
				}
			},
		},
		{
			name:   "entity registered under another type rolls back",
			commit: testCommit(3),
			setup: func(mock pgxmock.PgxPoolIface) {
				expectRegisterAndLockAs(mock, "supplier", 3, &later)
				mock.ExpectRollback()
			},
			checkErr: func(t *testing.T, err error) {
				var tm *store.EntityTypeMismatchError
				if !errors.As(err, &tm) {
					t.Fatalf("error = %v, want *EntityTypeMismatchError", err)
				}
				if tm.Registered != "supplier" || tm.Requested != "invoice" {
					t.Errorf("mismatch = %+v, want registered supplier requested invoice", tm)
				}
				if errors.Is(err, store.ErrAppendFailed) {
					t.Error("type mismatch should not be wrapped as an append failure")
				}
			},
		},
		{
			name:   "duplicate event id rolls back",
			commit: testCommit(0),
			setup: func(mock pgxmock.PgxPoolIface) {
				expectRegisterAndLock(mock, 0, nil)
				mock.ExpectQuery(`INSERT INTO correction_events`).
					WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "correction_events_event_id_key"})
				mock.ExpectRollback()
			},
			wantErr: store.ErrAppendFailed,
		},
		{
			name:   "begin failure",
			commit: testCommit(0),
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			wantErr: store.ErrAppendFailed,
		},
		{
			name:    "empty commit never reaches the database",
			commit:  store.Commit{EntityID: "inv-1"},
			setup:   func(mock pgxmock.PgxPoolIface) {},
			wantErr: store.ErrEmptyCommit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setup(mock)

			res, err := s.AppendBatch(context.Background(), tt.commit)

			switch {
			case tt.checkErr != nil:
				tt.checkErr(t, err)
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("AppendBatch() error = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("AppendBatch() failed: %v", err)
				}
				tt.check(t, res)
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestAppend_UsesSourceVersion(t *testing.T) {
	s, mock := newMockStore(t)
	expectRegisterAndLock(mock, 4, nil)
	mock.ExpectQuery(`INSERT INTO correction_events`).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(1)))
	mock.ExpectExec(`UPDATE entities`).
		WithArgs(int64(5), baseTime, "inv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	e := testCommit(0).Events[0]
	e.EntityID = "inv-1"
	e.EntityType = "invoice"
	e.SourceVersion = 4
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	expectationsWereMet(t, mock)
}

func TestCurrentVersion(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		want    uint64
		wantOK  bool
		wantErr bool
	}{
		{
			name: "found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT version FROM entities`).
					WithArgs("inv-1").
					WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
			},
			want:   3,
			wantOK: true,
		},
		{
			name: "unknown entity",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT version FROM entities`).
					WithArgs("inv-1").
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name: "query failure",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT version FROM entities`).
					WithArgs("inv-1").
					WillReturnError(context.DeadlineExceeded)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setup(mock)

			got, ok, err := s.CurrentVersion(context.Background(), "inv-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("CurrentVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CurrentVersion() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
			if tt.wantErr && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("error = %v, want context.DeadlineExceeded in chain", err)
			}
			expectationsWereMet(t, mock)
		})
	}
}

func TestCurrentValue(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT new_value FROM correction_events`).
		WithArgs("inv-1", "amount").
		WillReturnRows(pgxmock.NewRows([]string{"new_value"}).
			AddRow([]byte(`{"kind": "number", "value": 120}`)))
	mock.ExpectQuery(`SELECT new_value FROM correction_events`).
		WithArgs("inv-1", "notes").
		WillReturnError(pgx.ErrNoRows)

	v, ok, err := s.CurrentValue(context.Background(), "inv-1", "amount")
	if err != nil || !ok {
		t.Fatalf("CurrentValue(amount) = (%v, %v, %v)", v, ok, err)
	}
	if !field.Equal(v, field.Number(120)) {
		t.Errorf("CurrentValue(amount) = %v, want 120", v)
	}

	v, ok, err = s.CurrentValue(context.Background(), "inv-1", "notes")
	if err != nil || ok || v != nil {
		t.Errorf("CurrentValue(notes) = (%v, %v, %v), want (nil, false, nil)", v, ok, err)
	}
	expectationsWereMet(t, mock)
}

func eventRows() *pgxmock.Rows {
	valid := baseTime.AddDate(0, -1, 0)
	return pgxmock.NewRows(eventColumns).
		AddRow(int64(1), "ev-1", "inv-1", "invoice", "amount",
			[]byte(`null`), []byte(`{"kind": "number", "value": 100}`),
			baseTime, &valid, "tester", "initial import of amount", int64(0),
			[]byte(`{"source": "import"}`), "digest-1").
		AddRow(int64(2), "ev-2", "inv-1", "invoice", "amount",
			[]byte(`{"kind": "number", "value": 100}`), []byte(`{"kind": "number", "value": 120}`),
			baseTime.Add(time.Hour), (*time.Time)(nil), "tester", "invoice amount was mistyped", int64(1),
			[]byte(`{}`), "digest-2")
}

func TestHistory_SinglePage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT seq, event_id`).
		WithArgs("inv-1", "amount").
		WillReturnRows(eventRows())

	var got []correction.Event
	for e, err := range s.History(context.Background(), "inv-1", "amount") {
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		got = append(got, e)
	}

	if len(got) != 2 {
		t.Fatalf("History() returned %d events, want 2", len(got))
	}
	if got[0].OldValue != nil {
		t.Errorf("first OldValue = %v, want nil", got[0].OldValue)
	}
	if got[0].Metadata.Source != "import" {
		t.Errorf("first Metadata.Source = %q, want import", got[0].Metadata.Source)
	}
	if !got[1].ValidTime.IsZero() {
		t.Errorf("second ValidTime = %v, want zero", got[1].ValidTime)
	}
	if got[1].SourceVersion != 1 || got[1].Seq != 2 {
		t.Errorf("second event = seq %d source %d, want seq 2 source 1", got[1].Seq, got[1].SourceVersion)
	}
	expectationsWereMet(t, mock)
}

func TestHistory_YieldsQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT seq, event_id`).
		WillReturnError(errors.New("relation does not exist"))

	var errs int
	for _, err := range s.History(context.Background(), "inv-1", "amount") {
		if err != nil {
			errs++
		}
	}
	if errs != 1 {
		t.Errorf("History() yielded %d errors, want 1", errs)
	}
	expectationsWereMet(t, mock)
}

func TestEntityHistory(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT seq, event_id`).
		WithArgs("inv-1").
		WillReturnRows(eventRows())

	events, err := s.EntityHistory(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("EntityHistory() failed: %v", err)
	}
	if len(events) != 2 || events[1].EventID != "ev-2" {
		t.Errorf("EntityHistory() = %+v", events)
	}
	expectationsWereMet(t, mock)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "uq"}, "op: duplicate uq: "},
		{"foreign key", &pgconn.PgError{Code: "23503"}, "op: unknown entity: "},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: "entities_version_check"}, "op: check entities_version_check failed: "},
		{"other", errors.New("boom"), "op: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			if !errors.Is(got, tt.err) {
				t.Errorf("mapError() lost the cause: %v", got)
			}
			if len(got.Error()) < len(tt.want) || got.Error()[:len(tt.want)] != tt.want {
				t.Errorf("mapError() = %q, want prefix %q", got.Error(), tt.want)
			}
		})
	}
	if mapError(nil, "op") != nil {
		t.Error("mapError(nil) should be nil")
	}
}
