package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

func TestRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := stock.Record{
		CheckID:   "0b8f2c3e",
		Timestamp: now,
		URL:       "https://www.canadacomputers.com/p/1",
		Title:     "RTX 5090",
		Entries:   []stock.Entry{{Location: "Kanata", Quantity: 2}},
		Signature: "Kanata:2",
	}

	mock.ExpectExec("INSERT INTO inventory_changes").
		WithArgs(
			rec.CheckID,
			rec.Timestamp,
			rec.URL,
			rec.Title,
			[]byte(`[{"store":"Kanata","stock":2}]`),
			"Kanata:2",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmptyEntriesAsArray(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock, "stock_log")
	require.NoError(t, err)

	rec := stock.Record{CheckID: "id", Timestamp: time.Unix(0, 0).UTC(), URL: "u", Title: "t"}
	mock.ExpectExec("INSERT INTO stock_log").
		WithArgs(rec.CheckID, rec.Timestamp, rec.URL, rec.Title, []byte(`[]`), "").
		WillReturnError(errors.New("connection reset"))

	err = store.Record(context.Background(), rec)
	require.ErrorContains(t, err, "insert inventory record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock, "inventory_changes")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS inventory_changes").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewStoreWithPool(mock, "drop table;")
	require.Error(t, err)

	store, err := NewStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.Record(context.Background(), stock.Record{}))

	_, err = NewStore(context.Background(), Config{})
	require.Error(t, err)
}
