package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cdpvault/services/cdpd/stream"
)

func newIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	ix, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func record(seq uint64, kind, ilk string) stream.Record {
	return stream.Record{
		ID: uuid.NewString(), Seq: seq, Type: kind,
		Attributes: map[string]string{"ilk": ilk, "id": "1"},
		Time:       time.Unix(1_700_000_000+int64(seq), 0).UTC(),
	}
}

func TestStoreAndQuery(t *testing.T) {
	ix := newIndexer(t)
	ctx := context.Background()

	last, err := ix.LastSeq(ctx)
	require.NoError(t, err)
	require.Zero(t, last)

	require.NoError(t, ix.Store(ctx, record(1, "dog.bark", "GOLD-A")))
	require.NoError(t, ix.Store(ctx, record(2, "clip.kick", "GOLD-A")))
	require.NoError(t, ix.Store(ctx, record(3, "dog.bark", "SILVER-A")))

	all, err := ix.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Seq)
	require.Equal(t, "GOLD-A", all[0].Attributes["ilk"])

	barks, err := ix.Query(ctx, Filter{Type: "dog.bark"})
	require.NoError(t, err)
	require.Len(t, barks, 2)

	gold, err := ix.Query(ctx, Filter{Ilk: "GOLD-A", AfterSeq: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, gold, 1)
	require.Equal(t, "clip.kick", gold[0].Type)

	last, err = ix.LastSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)
}

func TestRunDrainsQueue(t *testing.T) {
	ix := newIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ix.Run(ctx)
		close(done)
	}()
	for seq := uint64(1); seq <= 5; seq++ {
		ix.Append(record(seq, "vat.frob", "GOLD-A"))
	}
	cancel()
	<-done

	rows, err := ix.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 5)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	require.Error(t, err)
}
