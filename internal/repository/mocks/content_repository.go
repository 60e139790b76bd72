// internal/repository/mocks/content_repository.go
// ContentRepository の testify モック。サービス層のユニットテスト用。
package mocks

import (
	"context"

	"go_training_keep/internal/model"
	"go_training_keep/internal/query"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type ContentRepository struct {
	mock.Mock
}

func (m *ContentRepository) Get(ctx context.Context, kind model.NodeKind, id string) (*model.ContentNode, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContentNode), args.Error(1)
}

func (m *ContentRepository) FindChildren(ctx context.Context, kind model.NodeKind, parentID, viewerID string) ([]*model.ContentNode, error) {
	args := m.Called(ctx, kind, parentID, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ContentNode), args.Error(1)
}

func (m *ContentRepository) CountChildren(ctx context.Context, kind model.NodeKind, parentID, viewerID string) (int64, error) {
	args := m.Called(ctx, kind, parentID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ContentRepository) List(ctx context.Context, kind model.NodeKind, match query.MatchSpec, sort query.SortSpec, page query.Page) ([]*model.ContentNode, error) {
	args := m.Called(ctx, kind, match, sort, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ContentNode), args.Error(1)
}

func (m *ContentRepository) Count(ctx context.Context, kind model.NodeKind, match query.MatchSpec) (int64, error) {
	args := m.Called(ctx, kind, match)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ContentRepository) Upsert(ctx context.Context, kind model.NodeKind, match query.MatchSpec, set bson.M) error {
	args := m.Called(ctx, kind, match, set)
	return args.Error(0)
}

func (m *ContentRepository) SoftDelete(ctx context.Context, kind model.NodeKind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

func (m *ContentRepository) CountVersions(ctx context.Context, lineageID string) (int64, error) {
	args := m.Called(ctx, lineageID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ContentRepository) MarkOldVersions(ctx context.Context, lineageID string) error {
	args := m.Called(ctx, lineageID)
	return args.Error(0)
}

func (m *ContentRepository) InsertProgram(ctx context.Context, node *model.ContentNode) error {
	args := m.Called(ctx, node)
	return args.Error(0)
}
