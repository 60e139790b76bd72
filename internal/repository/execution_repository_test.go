// internal/repository/execution_repository_test.go
package repository

import (
	"context"
	"testing"
	"time"

	"go_training_keep/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// --- テストヘルパー関数 (インメモリDBセットアップ) ---
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// テストごとに独立したインメモリDBを使う (cache=shared はコネクション
	// プール内での共有のために必要)
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // テスト中はログを抑制
	})
	require.NoError(t, err, "failed to connect database for execution repository testing")
	require.NoError(t, db.AutoMigrate(&model.ExecutionRecord{}))
	return db
}

func newDoneRecord(userID, targetID, parentID string, kind model.NodeKind) *model.ExecutionRecord {
	return &model.ExecutionRecord{
		ExecutionID: uuid.New(),
		UserID:      userID,
		TargetType:  kind,
		TargetID:    targetID,
		ParentID:    parentID,
		Status:      model.StatusDone,
		UpdatedAt:   time.Now(),
	}
}

func Test_gormExecutionRepository_CreateDone(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormExecutionRepository()

	rec := newDoneRecord("user-1", "ex-1", "sess-1", model.KindExercise)
	require.NoError(t, repo.CreateDone(ctx, db, rec))

	// 同一 (user, target_type, target_id) の再作成はユニーク制約違反 → ErrConflict
	dup := newDoneRecord("user-1", "ex-1", "sess-1", model.KindExercise)
	err := repo.CreateDone(ctx, db, dup)
	assert.ErrorIs(t, err, model.ErrConflict)

	// 別ユーザーの同一対象は作成できる
	other := newDoneRecord("user-2", "ex-1", "sess-1", model.KindExercise)
	assert.NoError(t, repo.CreateDone(ctx, db, other))
}

func Test_gormExecutionRepository_FindByTarget(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormExecutionRepository()

	// 異常系: レコードなし
	_, err := repo.FindByTarget(ctx, db, "user-1", model.KindExercise, "ex-1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// 正常系
	require.NoError(t, repo.CreateDone(ctx, db, newDoneRecord("user-1", "ex-1", "sess-1", model.KindExercise)))
	rec, err := repo.FindByTarget(ctx, db, "user-1", model.KindExercise, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, rec.Status)
	assert.Equal(t, "sess-1", rec.ParentID)
}

func Test_gormExecutionRepository_UpsertStatus(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormExecutionRepository()

	// 初回は新規作成 (ACTIVE)
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-1", model.KindSession, "sess-1", "prog-1", model.StatusActive))
	rec, err := repo.FindByTarget(ctx, db, "user-1", model.KindSession, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, rec.Status)
	firstID := rec.ExecutionID

	// 2回目は同一行の更新 (DONE へ)。行が増えないこと。
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-1", model.KindSession, "sess-1", "prog-1", model.StatusDone))
	rec, err = repo.FindByTarget(ctx, db, "user-1", model.KindSession, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, rec.Status)
	assert.Equal(t, firstID, rec.ExecutionID)

	var count int64
	require.NoError(t, db.Model(&model.ExecutionRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func Test_gormExecutionRepository_CountDoneByParent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormExecutionRepository()

	require.NoError(t, repo.CreateDone(ctx, db, newDoneRecord("user-1", "ex-1", "sess-1", model.KindExercise)))
	require.NoError(t, repo.CreateDone(ctx, db, newDoneRecord("user-1", "ex-2", "sess-1", model.KindExercise)))
	// 別親・別ユーザー・ACTIVE は数えない
	require.NoError(t, repo.CreateDone(ctx, db, newDoneRecord("user-1", "ex-9", "sess-2", model.KindExercise)))
	require.NoError(t, repo.CreateDone(ctx, db, newDoneRecord("user-2", "ex-3", "sess-1", model.KindExercise)))
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-1", model.KindExercise, "ex-4", "sess-1", model.StatusActive))

	count, err := repo.CountDoneByParent(ctx, db, "user-1", model.KindExercise, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func Test_gormExecutionRepository_DeleteByProgram(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormExecutionRepository()

	// プログラム本体・セッション・エクササイズの3階層分のレコード
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-1", model.KindProgram, "prog-1", "", model.StatusActive))
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-1", model.KindSession, "sess-1", "prog-1", model.StatusActive))
	require.NoError(t, repo.CreateDone(ctx, db, newDoneRecord("user-1", "ex-1", "sess-1", model.KindExercise)))
	// 別プログラムと別ユーザーのレコードは残ること
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-1", model.KindProgram, "prog-2", "", model.StatusActive))
	require.NoError(t, repo.UpsertStatus(ctx, db, "user-2", model.KindSession, "sess-1", "prog-1", model.StatusDone))

	require.NoError(t, repo.DeleteByProgram(ctx, db, "user-1", "prog-1", []string{"sess-1"}))

	var remaining []*model.ExecutionRecord
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, rec := range remaining {
		ok := rec.UserID == "user-2" || rec.TargetID == "prog-2"
		assert.True(t, ok, "unexpected surviving record: %+v", rec)
	}
}
