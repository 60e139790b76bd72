// internal/repository/mocks/execution_repository.go
// ExecutionRepository の testify モック。サービス層のユニットテスト用。
package mocks

import (
	"context"

	"go_training_keep/internal/model"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

type ExecutionRepository struct {
	mock.Mock
}

func (m *ExecutionRepository) FindByTarget(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, targetID string) (*model.ExecutionRecord, error) {
	args := m.Called(ctx, db, userID, kind, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutionRecord), args.Error(1)
}

func (m *ExecutionRepository) CreateDone(ctx context.Context, db *gorm.DB, rec *model.ExecutionRecord) error {
	args := m.Called(ctx, db, rec)
	return args.Error(0)
}

func (m *ExecutionRepository) UpsertStatus(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, targetID, parentID string, status model.ExecStatus) error {
	args := m.Called(ctx, db, userID, kind, targetID, parentID, status)
	return args.Error(0)
}

func (m *ExecutionRepository) CountDoneByParent(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, parentID string) (int64, error) {
	args := m.Called(ctx, db, userID, kind, parentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ExecutionRepository) ListByParent(ctx context.Context, db *gorm.DB, userID string, kind model.NodeKind, parentID string) ([]*model.ExecutionRecord, error) {
	args := m.Called(ctx, db, userID, kind, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ExecutionRecord), args.Error(1)
}

func (m *ExecutionRepository) DeleteByProgram(ctx context.Context, db *gorm.DB, userID, programID string, sessionIDs []string) error {
	args := m.Called(ctx, db, userID, programID, sessionIDs)
	return args.Error(0)
}
