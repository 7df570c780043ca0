package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sjsage522/hotissueworker/config"
	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/normalizer"
	"sjsage522/hotissueworker/internal/reconciler"
)

var kst = time.FixedZone("KST", 9*3600)

func newTestStore(t *testing.T, prefix string) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newGormLogger()})
	require.NoError(t, err)

	s := New(db, prefix)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func post(id string, views string) model.RawPost {
	return model.RawPost{
		PostID:    id,
		Community: "5",
		Category:  "자유",
		Title:     "뽐뿌 글 " + id,
		Link:      "https://www.ppomppu.co.kr/zboard/view.php?id=freeboard&no=" + id,
		Writer:    "뽐뿌인",
		Date:      "2025-03-01 10:30",
		Views:     views,
		Recommend: "3 - 0",
		Content:   "내용",
	}
}

func TestTableName(t *testing.T) {
	s := New(nil, "")
	assert.Equal(t, "hot_site", s.TableName(model.DomainHot))
	assert.Equal(t, "current_site", s.TableName(model.DomainPolitics))

	s = New(nil, "test_")
	assert.Equal(t, "test_current_site", s.TableName(model.DomainPolitics))
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Migrate(context.Background()))

	for _, table := range []string{"hot_site", "current_site"} {
		assert.True(t, s.db.Migrator().HasTable(table))
		assert.True(t, s.db.Migrator().HasIndex(table, "idx_"+table+"_post_id"))
		assert.True(t, s.db.Migrator().HasIndex(table, "idx_"+table+"_title_writer"))
	}
}

func TestReconcileRoundTrip(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()
	norm := normalizer.New(kst)
	r := reconciler.New(s, norm, kst)

	res, err := r.Reconcile(ctx, model.DomainHot, []model.RawPost{post("55", "10"), post("56", "1,000")}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	res, err = r.Reconcile(ctx, model.DomainHot, []model.RawPost{post("55", "10"), post("56", "1,000")}, "run-2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)

	res, err = r.Reconcile(ctx, model.DomainHot, []model.RawPost{post("55", "15")}, "run-3")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Events, 1)

	stored, err := s.Find(ctx, model.DomainHot, model.Key{Mode: model.KeyPostID, First: "55", Second: "5"})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Events[0].Seq, stored.Seq)
	assert.Equal(t, 15, stored.Views)
	assert.Equal(t, 3, stored.Recommend)
	assert.Equal(t, "[]", stored.Images)
	assert.Equal(t, "2025-03-01 10:30:00", stored.RegDate.In(kst).Format(model.RegDateLayout))

	n, err := s.Count(ctx, model.DomainHot)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Count(ctx, model.DomainPolitics)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()

	err := s.WithinTx(ctx, model.DomainPolitics, func(tx reconciler.Tx) error {
		row := model.NewStoredPost(normalizer.New(kst).Normalize(post("77", "1")))
		require.NoError(t, tx.Insert(&row))
		assert.NotZero(t, row.Seq)
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	n, err := s.Count(ctx, model.DomainPolitics)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindMissing(t *testing.T) {
	s := newTestStore(t, "test_")
	got, err := s.Find(context.Background(), model.DomainHot, model.Key{Mode: model.KeyTitleWriter, First: "없는 글", Second: "누군가"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{
		DBDriver:      "sqlite",
		DBName:        fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		DBConnTimeout: time.Second,
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(context.Background()))
}
