// internal/service/content_service.go
package service

import (
	"context"
	"errors"

	"go_training_keep/internal/config"
	"go_training_keep/internal/middleware"
	"go_training_keep/internal/model"
	"go_training_keep/internal/query"
	"go_training_keep/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ContentService はコンテンツツリーの読み取りと論理削除を提供します。
// ノードの作成・編集は別系統 (オーサリング側) の責務で、ここでは扱わない。
type ContentService interface {
	GetNode(ctx context.Context, userID string, kind model.NodeKind, id string) (*model.ContentNode, error)
	UpdateNode(ctx context.Context, userID string, kind model.NodeKind, id string, req *model.UpdateNodeRequest) error
	DeleteNode(ctx context.Context, userID string, kind model.NodeKind, id string) error
	ListPrograms(ctx context.Context, userID string, req *model.ListProgramsRequest) ([]*model.ContentNode, error)
}

type contentService struct {
	contentRepo repository.ContentRepository
	cfg         *config.Config
	validate    *validator.Validate
}

func NewContentService(contentRepo repository.ContentRepository, cfg *config.Config) ContentService {
	return &contentService{
		contentRepo: contentRepo,
		cfg:         cfg,
		validate:    validator.New(),
	}
}

func (s *contentService) GetNode(ctx context.Context, userID string, kind model.NodeKind, id string) (*model.ContentNode, error) {
	node, err := s.contentRepo.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "対象が見つかりません。", "", model.ErrNotFound)
		}
		middleware.GetLogger(ctx).Error("Error loading content node", "error", err, "kind", kind, "id", id)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "対象の取得に失敗しました。", "", model.ErrInternalServer)
	}
	if !node.VisibleTo(userID) {
		return nil, model.NewAppError("NOT_FOUND", "対象が見つかりません。", "", model.ErrNotFound)
	}
	return node, nil
}

// UpdateNode はノードの表示属性 (名前・サムネイル) を更新します。
// 更新できるのは作成者のみ。空のフィールドは変更しない。
func (s *contentService) UpdateNode(ctx context.Context, userID string, kind model.NodeKind, id string, req *model.UpdateNodeRequest) error {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "kind", kind, "id", id)

	if err := s.validate.Struct(req); err != nil {
		return model.NewAppError("VALIDATION_ERROR", "更新リクエストが不正です。", "", model.ErrInvalidInput)
	}
	set := bson.M{}
	if req.Name != "" {
		set["name"] = req.Name
	}
	if req.ThumbnailURL != "" {
		set["thumbnailUrl"] = req.ThumbnailURL
	}
	if len(set) == 0 {
		return model.NewAppError("VALIDATION_ERROR", "変更内容がありません。", "", model.ErrInvalidInput)
	}

	node, err := s.GetNode(ctx, userID, kind, id)
	if err != nil {
		return err
	}
	if node.CreatedBy != userID {
		return model.NewAppError("NOT_FOUND", "対象が見つかりません。", "", model.ErrNotFound)
	}

	match := query.MatchSpec{
		"_id":       query.Eq(id),
		"isDeleted": query.Eq(false),
	}
	if err := s.contentRepo.Upsert(ctx, kind, match, set); err != nil {
		logger.Error("Error updating content node", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "更新に失敗しました。", "", model.ErrInternalServer)
	}
	logger.Info("Content node updated")
	return nil
}

// DeleteNode はノードと配下を論理削除します。削除できるのは作成者のみ。
func (s *contentService) DeleteNode(ctx context.Context, userID string, kind model.NodeKind, id string) error {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "kind", kind, "id", id)

	node, err := s.GetNode(ctx, userID, kind, id)
	if err != nil {
		return err
	}
	if node.CreatedBy != userID {
		// 可視でも他人のノードは削除不可。存在は返っているので NotFound ではなく拒否でよいが、
		// 本人以外には編集系の存在も見せない方針に合わせる。
		return model.NewAppError("NOT_FOUND", "対象が見つかりません。", "", model.ErrNotFound)
	}

	if err := s.contentRepo.SoftDelete(ctx, kind, id); err != nil {
		logger.Error("Error soft-deleting content node", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "削除に失敗しました。", "", model.ErrInternalServer)
	}
	logger.Info("Content node soft-deleted")
	return nil
}

// ListPrograms は可視プログラムの一覧をページングして返します。
// Name は空文字なら条件ごと落ちる (EqString の規約)。
// IsPublic は nil なら絞り込みなし。IncludeOld=false のときは
// isOldVersion が true のドキュメントを演算子式で除外する。
func (s *contentService) ListPrograms(ctx context.Context, userID string, req *model.ListProgramsRequest) ([]*model.ContentNode, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID)

	if err := s.validate.Struct(req); err != nil {
		return nil, model.NewAppError("VALIDATION_ERROR", "リクエストが不正です。", "", model.ErrInvalidInput)
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = s.cfg.App.PageSize
	}

	match := query.MatchSpec{
		"name":      query.EqString(req.Name),
		"isDeleted": query.Eq(false),
	}.WithVisibility(userID)
	if req.IsPublic != nil {
		match["isPublic"] = query.Eq(*req.IsPublic)
	}
	if !req.IncludeOld {
		// isOldVersion は旧ドキュメントにフィールド自体が無い場合があるため $ne で除外
		match["isOldVersion"] = query.Raw(bson.M{"$ne": true})
	}

	sort := query.SortSpec{query.Desc("createdAt"), query.Asc("_id")}
	nodes, err := s.contentRepo.List(ctx, model.KindProgram, match, sort,
		query.Page{Number: req.Page, Size: pageSize})
	if err != nil {
		logger.Error("Error listing programs", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "プログラム一覧の取得に失敗しました。", "", model.ErrInternalServer)
	}
	return nodes, nil
}
