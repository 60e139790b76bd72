// internal/service/publish_service.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go_training_keep/internal/config"
	"go_training_keep/internal/middleware"
	"go_training_keep/internal/model"
	"go_training_keep/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PublishService はライブラリ原本からのプログラム公開 (バージョン発行) を
// 管理します。同一系列への公開はバージョン番号の採番が競合するため、
// 系列単位のロックで直列化する。ストレージの原子性には頼らない。
type PublishService interface {
	PublishProgram(ctx context.Context, userID string, req *model.PublishProgramRequest) (*model.ContentNode, error)
}

type publishService struct {
	contentRepo repository.ContentRepository
	cfg         *config.Config
	validate    *validator.Validate

	mu    sync.Mutex
	locks map[string]*lineageLock // 系列ID → 使用中のロック
}

// lineageLock は参照カウント付きの系列ロック。待機者が居なくなった時点で
// マップから消すため、公開済み系列の数だけエントリが溜まることはない。
type lineageLock struct {
	mu   sync.Mutex
	refs int
}

func NewPublishService(contentRepo repository.ContentRepository, cfg *config.Config) PublishService {
	return &publishService{
		contentRepo: contentRepo,
		cfg:         cfg,
		validate:    validator.New(),
		locks:       make(map[string]*lineageLock),
	}
}

func (s *publishService) acquireLineage(lineageID string) *lineageLock {
	s.mu.Lock()
	lock, ok := s.locks[lineageID]
	if !ok {
		lock = &lineageLock{}
		s.locks[lineageID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *publishService) releaseLineage(lineageID string, lock *lineageLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, lineageID)
	}
	s.mu.Unlock()
}

// PublishProgram は系列の既存バージョン数を数え、全ての既存バージョンに
// isOldVersion を立ててから version = count+1 の新バージョンを作成します。
// count → mark → insert は同一系列内で必ず直列に実行される。
func (s *publishService) PublishProgram(ctx context.Context, userID string, req *model.PublishProgramRequest) (*model.ContentNode, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "lib_program_id", req.LibProgramID)

	if err := s.validate.Struct(req); err != nil {
		return nil, model.NewAppError("VALIDATION_ERROR", "公開リクエストが不正です。", "", model.ErrInvalidInput)
	}

	draft, err := s.contentRepo.Get(ctx, model.KindProgram, req.LibProgramID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "公開対象のプログラムが見つかりません。", "", model.ErrNotFound)
		}
		logger.Error("Error loading draft program", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "プログラムの取得に失敗しました。", "", model.ErrInternalServer)
	}
	// 公開できるのは作成者本人のみ。他人の原本は存在ごと隠す。
	if draft.CreatedBy != userID {
		return nil, model.NewAppError("NOT_FOUND", "公開対象のプログラムが見つかりません。", "", model.ErrNotFound)
	}

	lineageID := draft.Lineage()
	lock := s.acquireLineage(lineageID)
	defer s.releaseLineage(lineageID, lock)

	count, err := s.contentRepo.CountVersions(ctx, lineageID)
	if err != nil {
		logger.Error("Error counting lineage versions", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "バージョン数の取得に失敗しました。", "", model.ErrInternalServer)
	}
	if err := s.contentRepo.MarkOldVersions(ctx, lineageID); err != nil {
		logger.Error("Error marking old versions", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "旧バージョンの更新に失敗しました。", "", model.ErrInternalServer)
	}

	now := time.Now()
	published := *draft
	published.ID = uuid.New().String()
	published.Version = int(count) + 1
	published.IsOldVersion = false
	published.IsPublic = true
	published.LibProgramID = lineageID
	published.ParentProgramID = draft.ID
	published.CreatedAt = now
	published.UpdatedAt = now
	if req.Name != "" {
		published.Name = req.Name
	}
	if req.ThumbnailURL != "" {
		published.ThumbnailURL = req.ThumbnailURL
	}
	if published.ThumbnailURL == "" {
		// リクエストにも原本にも画像が無い場合だけプレースホルダを使う
		published.ThumbnailURL = s.cfg.App.DefaultThumbnailURL
	}

	if err := s.contentRepo.InsertProgram(ctx, &published); err != nil {
		logger.Error("Error inserting published version", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "新バージョンの作成に失敗しました。", "", model.ErrInternalServer)
	}

	logger.Info("Program published", "version", published.Version, "program_id", published.ID)
	return &published, nil
}
