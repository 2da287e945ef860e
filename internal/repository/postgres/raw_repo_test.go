package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/model"
	"github.com/and161185/moodle-elt/internal/record"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var insertSQL = regexp.QuoteMeta(insertRaw)

func rawRecord(id int64, at time.Time) model.RawRecord {
	rec := model.RawRecord{
		Instance:    "instance1",
		Entity:      "course",
		DataJSON:    `{"id":1}`,
		ContentHash: []byte{0xde, 0xad},
		ExtractedAt: at,
	}
	if id > 0 {
		rec.MoodleID = &id
	}
	return rec
}

func TestRawRepo_Persist_CountsInserted(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRawRepo(db)

	at := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	recs := []model.RawRecord{rawRecord(1, at), rawRecord(2, at), rawRecord(0, at)}

	mock.ExpectBegin()
	mock.ExpectExec(insertSQL).
		WithArgs("instance1", "course", recs[0].MoodleID, `{"id":1}`, []byte{0xde, 0xad}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insertSQL).
		WithArgs("instance1", "course", recs[1].MoodleID, `{"id":1}`, []byte{0xde, 0xad}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(insertSQL).
		WithArgs("instance1", "course", pgxmock.AnyArg(), `{"id":1}`, []byte{0xde, 0xad}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := r.Persist(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_Persist_KeepsNULEscapeVerbatim(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	p := record.NewPreparer(record.FixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	rec, err := p.Prepare("moodle1", "users", nil, model.Record{"id": 1, "username": "a\x00b"})
	require.NoError(t, err)
	require.Equal(t, `{"id":1,"username":"a\u0000b"}`, rec.DataJSON)

	mock.ExpectBegin()
	mock.ExpectExec(insertSQL).
		WithArgs("moodle1", "user", rec.MoodleID, rec.DataJSON, rec.ContentHash, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := NewRawRepo(db).Persist(context.Background(), []model.RawRecord{rec})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_Persist_EmptyBatchSkipsTx(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	n, err := NewRawRepo(db).Persist(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_Persist_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRawRepo(db)

	at := time.Now().UTC()
	recs := []model.RawRecord{rawRecord(1, at), rawRecord(2, at)}

	mock.ExpectBegin()
	mock.ExpectExec(insertSQL).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insertSQL).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n, err := r.Persist(context.Background(), recs)
	require.ErrorIs(t, err, errs.ErrPersistence)
	require.Contains(t, err.Error(), "record[1]")
	require.Contains(t, err.Error(), "connection reset")
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_Persist_BeginError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	_, err := NewRawRepo(db).Persist(context.Background(), []model.RawRecord{rawRecord(1, time.Now())})
	require.ErrorIs(t, err, errs.ErrPersistence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_Persist_CommitError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(insertSQL).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	n, err := NewRawRepo(db).Persist(context.Background(), []model.RawRecord{rawRecord(1, time.Now())})
	require.ErrorIs(t, err, errs.ErrPersistence)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_CountSnapshots(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(countRaw)).
		WithArgs("instance1", "course").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := NewRawRepo(db).CountSnapshots(context.Background(), "instance1", "course")
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
