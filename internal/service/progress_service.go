// internal/service/progress_service.go
package service

import (
	"context"
	"errors"
	"time"

	"go_training_keep/internal/middleware"
	"go_training_keep/internal/model"
	"go_training_keep/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressService はユーザーごとの実行進捗を管理します。
// Exercise の完了 → Session / Program への積み上げ再計算、順序ガード、
// 次セッション解決、進捗付き一覧がここに集まる。
type ProgressService interface {
	RunExercise(ctx context.Context, userID, exerciseID string) (*model.RunExerciseResult, error)
	GetProgress(ctx context.Context, userID string, kind model.NodeKind, targetID string) (model.ExecStatus, error)
	ClearExecution(ctx context.Context, userID, programID string) error
	ListWithProgress(ctx context.Context, userID string, parentKind model.NodeKind, req *model.ListWithProgressRequest) ([]*model.NodeWithStatus, error)
}

type progressService struct {
	db          *gorm.DB // 進捗ストア接続
	contentRepo repository.ContentRepository
	execRepo    repository.ExecutionRepository
	validate    *validator.Validate
}

func NewProgressService(db *gorm.DB, contentRepo repository.ContentRepository, execRepo repository.ExecutionRepository) ProgressService {
	return &progressService{
		db:          db,
		contentRepo: contentRepo,
		execRepo:    execRepo,
		validate:    validator.New(),
	}
}

// RunExercise は Exercise を完了済みにし、Session → Program の順に
// 親の進捗を再計算します。3つの書き込みは必ずこの順で直列に行う。
// 各ロールアップの件数カウントは直前の書き込み結果を読むため、
// 並列化すると積み上げが壊れる。
func (s *progressService) RunExercise(ctx context.Context, userID, exerciseID string) (*model.RunExerciseResult, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "exercise_id", exerciseID)

	// 1. 対象の Exercise と親 Session の解決。不可視は存在秘匿のため
	//    NotFound と同じ扱いにする。
	exercise, err := s.visibleNode(ctx, model.KindExercise, exerciseID, userID)
	if err != nil {
		return nil, err
	}
	session, err := s.visibleNode(ctx, model.KindSession, exercise.SessionID, userID)
	if err != nil {
		logger.Warn("Parent session not reachable for exercise", "session_id", exercise.SessionID)
		return nil, err
	}

	// 2. 冪等性ガード: 既に DONE なら再実行はエラー
	existing, err := s.execRepo.FindByTarget(ctx, s.db, userID, model.KindExercise, exerciseID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		logger.Error("Error checking existing execution record", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "実行記録の確認中にエラーが発生しました。", "", model.ErrInternalServer)
	}
	if existing != nil && existing.Status == model.StatusDone {
		logger.Info("Exercise already done, rejecting")
		return nil, model.NewAppError("ALREADY_DONE", "このエクササイズは既に完了しています。", "", model.ErrAlreadyDone)
	}

	// 3. 順序ガード: 可視の兄弟リスト上で直前の Exercise が DONE であること
	siblings, err := s.contentRepo.FindChildren(ctx, model.KindSession, session.ID, userID)
	if err != nil {
		logger.Error("Error listing sibling exercises", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "エクササイズ一覧の取得に失敗しました。", "", model.ErrInternalServer)
	}
	idx := -1
	for i, sib := range siblings {
		if sib.ID == exerciseID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// 可視リストに現れない = 実質不可視
		return nil, model.NewAppError("NOT_FOUND", "エクササイズが見つかりません。", "", model.ErrNotFound)
	}
	if idx > 0 {
		prev := siblings[idx-1]
		prevRec, err := s.execRepo.FindByTarget(ctx, s.db, userID, model.KindExercise, prev.ID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			logger.Error("Error checking previous sibling record", "error", err)
			return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "実行記録の確認中にエラーが発生しました。", "", model.ErrInternalServer)
		}
		if prevRec == nil || prevRec.Status != model.StatusDone {
			logger.Info("Out of sequence completion rejected", "previous_id", prev.ID)
			return nil, model.NewAppError("OUT_OF_SEQUENCE", "直前のエクササイズがまだ完了していません。", "", model.ErrOutOfSequence)
		}
	}

	// 4. DONE レコードの write-once 書き込み。
	//    2 の事前チェックをすり抜けた二重送信はユニーク制約で弾かれる。
	rec := &model.ExecutionRecord{
		ExecutionID: uuid.New(),
		UserID:      userID,
		TargetType:  model.KindExercise,
		TargetID:    exerciseID,
		ParentID:    session.ID,
		Status:      model.StatusDone,
		UpdatedAt:   time.Now(),
	}
	if err := s.execRepo.CreateDone(ctx, s.db, rec); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, model.NewAppError("ALREADY_DONE", "このエクササイズは既に完了しています。", "", model.ErrAlreadyDone)
		}
		logger.Error("Error writing exercise execution record", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "実行記録の保存に失敗しました。", "", model.ErrInternalServer)
	}

	// 5. ロールアップ: Session → Program の順で直列に再計算
	sessionStatus, err := s.rollup(ctx, userID, model.KindSession, session)
	if err != nil {
		logger.Error("Error rolling up session status", "error", err, "session_id", session.ID)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "セッション進捗の更新に失敗しました。", "", model.ErrInternalServer)
	}
	program, err := s.contentRepo.Get(ctx, model.KindProgram, session.ProgramID)
	if err != nil {
		logger.Error("Error loading parent program", "error", err, "program_id", session.ProgramID)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "プログラムの取得に失敗しました。", "", model.ErrInternalServer)
	}
	programStatus, err := s.rollup(ctx, userID, model.KindProgram, program)
	if err != nil {
		logger.Error("Error rolling up program status", "error", err, "program_id", program.ID)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "プログラム進捗の更新に失敗しました。", "", model.ErrInternalServer)
	}

	// 6. 次セッションの解決 (無ければ空文字のまま返す。エラーではない)
	nextSessionID, err := s.resolveNextSession(ctx, userID, program.ID, session.Order)
	if err != nil {
		logger.Error("Error resolving next session", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "次セッションの解決に失敗しました。", "", model.ErrInternalServer)
	}

	logger.Info("Exercise completed",
		"session_status", sessionStatus,
		"program_status", programStatus,
		"next_session_id", nextSessionID,
	)
	return &model.RunExerciseResult{
		Accepted:      true,
		IsSessionDone: sessionStatus == model.StatusDone,
		IsProgramDone: programStatus == model.StatusDone,
		NextSessionID: nextSessionID,
	}, nil
}

// rollup は親ノードの進捗を子の件数から再計算して upsert します。
// DONE 条件: 可視の子ノード数 == その親配下の DONE レコード数。
// 分母 (コンテンツツリー) と分子 (進捗ストア) は同じ可視述語を通っている
// ことが前提 (ContentRepository 側で ACL 句を共有)。
// 加算ではなく毎回の再計算なので、途中失敗後のリトライで二重計上しない。
func (s *progressService) rollup(ctx context.Context, userID string, kind model.NodeKind, node *model.ContentNode) (model.ExecStatus, error) {
	childKind, _ := kind.ChildKind()

	total, err := s.contentRepo.CountChildren(ctx, kind, node.ID, userID)
	if err != nil {
		return "", err
	}
	done, err := s.execRepo.CountDoneByParent(ctx, s.db, userID, childKind, node.ID)
	if err != nil {
		return "", err
	}

	status := model.StatusActive
	if total > 0 && done >= total {
		status = model.StatusDone
	}
	if err := s.execRepo.UpsertStatus(ctx, s.db, userID, kind, node.ID, node.ParentID(), status); err != nil {
		return "", err
	}
	return status, nil
}

// resolveNextSession は現在のセッションより order が大きい可視セッションの
// うち最小 order のものを返します。同 order は ID 昇順で決定的に選ぶ。
func (s *progressService) resolveNextSession(ctx context.Context, userID, programID string, currentOrder int) (string, error) {
	sessions, err := s.contentRepo.FindChildren(ctx, model.KindProgram, programID, userID)
	if err != nil {
		return "", err
	}
	// FindChildren は (order, _id) 昇順なので最初の一致が答え
	for _, sess := range sessions {
		if sess.Order > currentOrder {
			return sess.ID, nil
		}
	}
	return "", nil
}

// GetProgress は対象ノードの進捗を返します。レコードが無ければ TO_DO。
func (s *progressService) GetProgress(ctx context.Context, userID string, kind model.NodeKind, targetID string) (model.ExecStatus, error) {
	if _, err := s.visibleNode(ctx, kind, targetID, userID); err != nil {
		return "", err
	}

	rec, err := s.execRepo.FindByTarget(ctx, s.db, userID, kind, targetID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.StatusToDo, nil
		}
		middleware.GetLogger(ctx).Error("Error finding execution record", "error", err, "target_id", targetID)
		return "", model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の取得に失敗しました。", "", model.ErrInternalServer)
	}
	return rec.Status, nil
}

// ClearExecution は (user, program) の実行記録を全て物理削除します
func (s *progressService) ClearExecution(ctx context.Context, userID, programID string) error {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "program_id", programID)

	program, err := s.visibleNode(ctx, model.KindProgram, programID, userID)
	if err != nil {
		return err
	}

	// Exercise レコードの parent_id はセッションIDなので一覧を先に引く
	sessions, err := s.contentRepo.FindChildren(ctx, model.KindProgram, program.ID, userID)
	if err != nil {
		logger.Error("Error listing sessions for clear", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "セッション一覧の取得に失敗しました。", "", model.ErrInternalServer)
	}
	sessionIDs := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		sessionIDs = append(sessionIDs, sess.ID)
	}

	if err := s.execRepo.DeleteByProgram(ctx, s.db, userID, programID, sessionIDs); err != nil {
		logger.Error("Error deleting execution records", "error", err)
		return model.NewAppError("INTERNAL_SERVER_ERROR", "実行記録の削除に失敗しました。", "", model.ErrInternalServer)
	}

	logger.Info("Execution records cleared", "session_count", len(sessionIDs))
	return nil
}

// ListWithProgress は親ノード直下の可視ノードを進捗付きで返します。
// READY は永続化しない表示専用の状態で、兄弟リスト上で最後の DONE の
// 直後にある未完了ノードにのみ付く。DONE が1つも無ければ付かない。
func (s *progressService) ListWithProgress(ctx context.Context, userID string, parentKind model.NodeKind, req *model.ListWithProgressRequest) ([]*model.NodeWithStatus, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "parent_id", req.ParentID)

	if err := s.validate.Struct(req); err != nil {
		return nil, model.NewAppError("VALIDATION_ERROR", "リクエストが不正です。", "", model.ErrInvalidInput)
	}

	parent, err := s.visibleNode(ctx, parentKind, req.ParentID, userID)
	if err != nil {
		return nil, err
	}
	childKind, ok := parentKind.ChildKind()
	if !ok {
		return nil, model.NewAppError("VALIDATION_ERROR", "エクササイズ配下に子要素はありません。", "parent_id", model.ErrInvalidInput)
	}

	// READY の位置は兄弟全体の並びで決まるため、ページを切り出す前に
	// 全件を引いて付与する。ページ内だけで計算すると、最後の DONE が
	// ページ末尾にあるとき次ページ先頭の READY が消える。
	children, err := s.contentRepo.FindChildren(ctx, parentKind, parent.ID, userID)
	if err != nil {
		logger.Error("Error listing children with progress", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "一覧の取得に失敗しました。", "", model.ErrInternalServer)
	}

	recs, err := s.execRepo.ListByParent(ctx, s.db, userID, childKind, parent.ID)
	if err != nil {
		logger.Error("Error listing execution records", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の取得に失敗しました。", "", model.ErrInternalServer)
	}
	statusByID := make(map[string]model.ExecStatus, len(recs))
	for _, rec := range recs {
		statusByID[rec.TargetID] = rec.Status
	}

	items := make([]*model.NodeWithStatus, 0, len(children))
	for _, child := range children {
		status := model.StatusToDo
		if st, ok := statusByID[child.ID]; ok {
			status = st
		}
		items = append(items, &model.NodeWithStatus{Node: child, Status: status})
	}
	annotateReady(items)

	// ページ切り出し (skip = (page-1)*size, limit = size)
	start := (req.Page - 1) * req.PageSize
	if start >= len(items) {
		return []*model.NodeWithStatus{}, nil
	}
	end := start + req.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

// annotateReady は兄弟順リストに READY を付与します
func annotateReady(items []*model.NodeWithStatus) {
	lastDone := -1
	for i, it := range items {
		if it.Status == model.StatusDone {
			lastDone = i
		}
	}
	if lastDone >= 0 && lastDone+1 < len(items) {
		items[lastDone+1].Status = model.StatusReady
	}
}

// visibleNode は対象ノードを取得し可視性を検査します。
// 不在・論理削除済み・不可視はいずれも NOT_FOUND に揃える (存在を漏らさない)。
func (s *progressService) visibleNode(ctx context.Context, kind model.NodeKind, id, userID string) (*model.ContentNode, error) {
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
