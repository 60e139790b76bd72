// internal/service/publish_service_test.go
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go_training_keep/internal/config"
	"go_training_keep/internal/model"
	"go_training_keep/internal/repository/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func publishTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.DefaultThumbnailURL = "https://placehold.jp/150x150.png"
	return cfg
}

func draftProgram(owner string) *model.ContentNode {
	return &model.ContentNode{
		ID:        "prog-1",
		Kind:      model.KindProgram,
		Name:      "筋トレ入門",
		CreatedBy: owner,
		ShareWith: model.ShareOwner,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- Test PublishProgram ---
func Test_publishService_PublishProgram(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	t.Run("正常系: 既存2バージョンの系列ではversion=3が発行される", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())
		draft := draftProgram(userID)

		var inserted *model.ContentNode
		mockRepo.On("Get", ctx, model.KindProgram, "prog-1").Return(draft, nil)
		mockRepo.On("CountVersions", ctx, "prog-1").Return(int64(2), nil)
		mockRepo.On("MarkOldVersions", ctx, "prog-1").Return(nil)
		mockRepo.On("InsertProgram", ctx, mock.AnythingOfType("*model.ContentNode")).
			Run(func(args mock.Arguments) {
				inserted = args.Get(1).(*model.ContentNode)
			}).Return(nil)

		published, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{
			LibProgramID: "prog-1",
		})

		require.NoError(t, err)
		require.NotNil(t, inserted)
		assert.Equal(t, published, inserted)
		assert.Equal(t, 3, inserted.Version)
		assert.False(t, inserted.IsOldVersion)
		assert.True(t, inserted.IsPublic)
		assert.Equal(t, "prog-1", inserted.LibProgramID)
		assert.Equal(t, "prog-1", inserted.ParentProgramID)
		assert.NotEqual(t, draft.ID, inserted.ID, "公開版は原本とは別IDを持つ")
		assert.Equal(t, "筋トレ入門", inserted.Name, "名前未指定なら原本の名前を引き継ぐ")
		mockRepo.AssertExpectations(t)
	})

	t.Run("正常系: サムネイル未指定ならデフォルト画像が入る", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())

		var inserted *model.ContentNode
		mockRepo.On("Get", ctx, model.KindProgram, "prog-1").Return(draftProgram(userID), nil)
		mockRepo.On("CountVersions", ctx, "prog-1").Return(int64(0), nil)
		mockRepo.On("MarkOldVersions", ctx, "prog-1").Return(nil)
		mockRepo.On("InsertProgram", ctx, mock.AnythingOfType("*model.ContentNode")).
			Run(func(args mock.Arguments) {
				inserted = args.Get(1).(*model.ContentNode)
			}).Return(nil)

		_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{
			LibProgramID: "prog-1",
			Name:         "新しい名前",
		})

		require.NoError(t, err)
		require.NotNil(t, inserted)
		assert.Equal(t, 1, inserted.Version)
		assert.Equal(t, "新しい名前", inserted.Name)
		assert.Equal(t, "https://placehold.jp/150x150.png", inserted.ThumbnailURL)
	})

	t.Run("正常系: リクエスト未指定なら原本のサムネイルを引き継ぐ", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())
		draft := draftProgram(userID)
		draft.ThumbnailURL = "https://example.com/original-art.png"

		var inserted *model.ContentNode
		mockRepo.On("Get", ctx, model.KindProgram, "prog-1").Return(draft, nil)
		mockRepo.On("CountVersions", ctx, "prog-1").Return(int64(0), nil)
		mockRepo.On("MarkOldVersions", ctx, "prog-1").Return(nil)
		mockRepo.On("InsertProgram", ctx, mock.AnythingOfType("*model.ContentNode")).
			Run(func(args mock.Arguments) {
				inserted = args.Get(1).(*model.ContentNode)
			}).Return(nil)

		_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{
			LibProgramID: "prog-1",
		})

		require.NoError(t, err)
		require.NotNil(t, inserted)
		assert.Equal(t, "https://example.com/original-art.png", inserted.ThumbnailURL,
			"原本の画像がプレースホルダで上書きされてはいけない")
	})

	t.Run("正常系: サムネイル指定時はそのまま使う", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())

		var inserted *model.ContentNode
		mockRepo.On("Get", ctx, model.KindProgram, "prog-1").Return(draftProgram(userID), nil)
		mockRepo.On("CountVersions", ctx, "prog-1").Return(int64(0), nil)
		mockRepo.On("MarkOldVersions", ctx, "prog-1").Return(nil)
		mockRepo.On("InsertProgram", ctx, mock.AnythingOfType("*model.ContentNode")).
			Run(func(args mock.Arguments) {
				inserted = args.Get(1).(*model.ContentNode)
			}).Return(nil)

		_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{
			LibProgramID: "prog-1",
			ThumbnailURL: "https://example.com/custom.png",
		})

		require.NoError(t, err)
		require.NotNil(t, inserted)
		assert.Equal(t, "https://example.com/custom.png", inserted.ThumbnailURL)
	})

	t.Run("異常系: 他人の原本はNOT_FOUND扱いで書き込みも起きない", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())

		mockRepo.On("Get", ctx, model.KindProgram, "prog-1").Return(draftProgram("someone-else"), nil)

		_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{
			LibProgramID: "prog-1",
		})

		assert.ErrorIs(t, err, model.ErrNotFound)
		mockRepo.AssertNotCalled(t, "MarkOldVersions", mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "InsertProgram", mock.Anything, mock.Anything)
	})

	t.Run("異常系: 存在しない原本はNOT_FOUND", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())

		mockRepo.On("Get", ctx, model.KindProgram, "prog-404").Return(nil, model.ErrNotFound)

		_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{
			LibProgramID: "prog-404",
		})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("異常系: 原本ID未指定はバリデーションエラー", func(t *testing.T) {
		mockRepo := new(mocks.ContentRepository)
		svc := NewPublishService(mockRepo, publishTestConfig())

		_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{})

		assert.ErrorIs(t, err, model.ErrInvalidInput)
		mockRepo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})
}

// 同一系列への同時公開が count → mark → insert の区間で重ならないことを検証する
func Test_publishService_PublishProgram_Serialized(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"
	mockRepo := new(mocks.ContentRepository)
	svc := NewPublishService(mockRepo, publishTestConfig())

	var inflight int32
	var overlapped atomic.Bool
	enter := func(args mock.Arguments) {
		if atomic.AddInt32(&inflight, 1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
	}
	leave := func(args mock.Arguments) {
		atomic.AddInt32(&inflight, -1)
	}

	mockRepo.On("Get", ctx, model.KindProgram, "prog-1").Return(draftProgram(userID), nil)
	mockRepo.On("CountVersions", ctx, "prog-1").Run(enter).Return(int64(0), nil)
	mockRepo.On("MarkOldVersions", ctx, "prog-1").Return(nil)
	mockRepo.On("InsertProgram", ctx, mock.AnythingOfType("*model.ContentNode")).Run(leave).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PublishProgram(ctx, userID, &model.PublishProgramRequest{LibProgramID: "prog-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlapped.Load(), "同一系列の採番区間が並走してはいけない")
	mockRepo.AssertNumberOfCalls(t, "InsertProgram", 4)

	// 待機者が居なくなった系列のロックはマップから消えている
	impl := svc.(*publishService)
	impl.mu.Lock()
	remaining := len(impl.locks)
	impl.mu.Unlock()
	assert.Zero(t, remaining)
}
