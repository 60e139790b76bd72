// internal/repository/execution_repository.go
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go_training_keep/internal/middleware"
	"go_training_keep/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExecutionRepository は ExecutionRecord (ユーザー×対象ごとの進捗行) への
// アクセスを提供します。コンテンツツリーとは独立した RDB に保存する。
type ExecutionRepository interface {
	FindByTarget(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, targetID string) (*model.ExecutionRecord, error)
	CreateDone(ctx context.Context, db *gorm.DB, rec *model.ExecutionRecord) error
	UpsertStatus(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, targetID, parentID string, status model.ExecStatus) error
	CountDoneByParent(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, parentID string) (int64, error)
	ListByParent(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, parentID string) ([]*model.ExecutionRecord, error)
	DeleteByProgram(ctx context.Context, db *gorm.DB, userID, programID string, sessionIDs []string) error
}

type gormExecutionRepository struct{}

func NewGormExecutionRepository() ExecutionRepository {
	return &gormExecutionRepository{}
}

func (r *gormExecutionRepository) FindByTarget(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, targetID string) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	result := db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, kind, targetID).
		First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

// CreateDone は DONE レコードを書き込み専用 (write-once) で作成します。
// 事前チェックと書き込みの間に同一ユーザーの重複送信が割り込んだ場合、
// 複合ユニークインデックス違反になるため ErrConflict に変換して返す。
func (r *gormExecutionRepository) CreateDone(ctx context.Context, db *gorm.DB, rec *model.ExecutionRecord) error {
	logger := middleware.GetLogger(ctx)

	result := db.WithContext(ctx).Create(rec)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			logger.Warn(
				"Duplicate key error on create execution record",
				"error", result.Error,
				"user_id", rec.UserID,
				"target_id", rec.TargetID,
			)
			return model.ErrConflict
		}
		logger.Error(
			"Error creating execution record in DB",
			"error", result.Error,
			"user_id", rec.UserID,
			"target_id", rec.TargetID,
		)
		return result.Error
	}
	return nil
}

// UpsertStatus はロールアップ結果を (user, target) に upsert します。
// 件数から再計算した状態を書くだけなので、リトライしても冪等。
func (r *gormExecutionRepository) UpsertStatus(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, targetID, parentID string, status model.ExecStatus) error {
	now := time.Now()
	rec := &model.ExecutionRecord{
		ExecutionID: uuid.New(),
		UserID:      userID,
		TargetType:  kind,
		TargetID:    targetID,
		ParentID:    parentID,
		Status:      status,
		UpdatedAt:   now,
	}
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "target_type"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     status,
			"parent_id":  parentID,
			"updated_at": now,
		}),
	}).Create(rec)
	if result.Error != nil {
		middleware.GetLogger(ctx).Error(
			"Error upserting execution record",
			"error", result.Error,
			"user_id", userID,
			"target_id", targetID,
		)
		return result.Error
	}
	return nil
}

func (r *gormExecutionRepository) CountDoneByParent(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, parentID string) (int64, error) {
	var count int64
	result := db.WithContext(ctx).Model(&model.ExecutionRecord{}).
		Where("user_id = ? AND target_type = ? AND parent_id = ? AND status = ?",
			userID, kind, parentID, model.StatusDone).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

func (r *gormExecutionRepository) ListByParent(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, parentID string) ([]*model.ExecutionRecord, error) {
	var recs []*model.ExecutionRecord
	result := db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND parent_id = ?", userID, kind, parentID).
		Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	return recs, nil
}

// DeleteByProgram は (user, program) に紐づく全レコードを物理削除します。
// Exercise のレコードは parent_id がセッションIDのため、呼び出し側が
// コンテンツツリーから引いたセッションID一覧を渡す。
func (r *gormExecutionRepository) DeleteByProgram(ctx context.Context, db *gorm.DB, userID, programID string, sessionIDs []string) error {
	tx := db.WithContext(ctx).Where("user_id = ?", userID)
	if len(sessionIDs) > 0 {
		tx = tx.Where("target_id = ? OR parent_id = ? OR parent_id IN ?", programID, programID, sessionIDs)
	} else {
		tx = tx.Where("target_id = ? OR parent_id = ?", programID, programID)
	}
	result := tx.Delete(&model.ExecutionRecord{})
	if result.Error != nil {
		middleware.GetLogger(ctx).Error(
			"Error deleting execution records",
			"error", result.Error,
			"user_id", userID,
			"program_id", programID,
		)
		return result.Error
	}
	return nil
}

// isDuplicateKey はユニーク制約違反かどうかをドライバ横断で判定します。
// postgres は pgconn のエラーコード 23505、sqlite (テスト用) はメッセージで判定。
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
