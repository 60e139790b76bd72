// internal/model/execution.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// ExecStatus はユーザーごとの実行状態を表します。
// TO_DO はレコード未作成の仮想状態、READY は表示時にのみ導出される状態で、
// どちらも永続化されるのは ACTIVE / DONE のみ。
type ExecStatus string

const (
	StatusToDo   ExecStatus = "TO_DO"
	StatusActive ExecStatus = "ACTIVE"
	StatusDone   ExecStatus = "DONE"
	StatusReady  ExecStatus = "READY"
)

// ExecutionRecord はユーザー×対象ノードごとの実行進捗を表します。
// (user_id, target_type, target_id) で一意。追記ログではなく upsert 対象。
type ExecutionRecord struct {
	ExecutionID uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID      string     `gorm:"not null;index:idx_user_target,unique"` // 複合ユニークインデックスの一部
	TargetType  NodeKind   `gorm:"type:varchar(16);not null;index:idx_user_target,unique"`
	TargetID    string     `gorm:"not null;index:idx_user_target,unique"`
	ParentID    string     `gorm:"index"` // ロールアップ時の集計キー (Exercise→Session, Session→Program)
	Status      ExecStatus `gorm:"type:varchar(8);not null;default:'ACTIVE'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ExecutionRecord) TableName() string {
	return "execution_records"
}

// RunExercise のレスポンスDTO
type RunExerciseResult struct {
	Accepted      bool   `json:"accepted"`
	IsSessionDone bool   `json:"is_session_done"`
	IsProgramDone bool   `json:"is_program_done"`
	NextSessionID string `json:"next_session_id,omitempty"` // 次セッションが無い場合は空
}

// 進捗付きノード一覧の1要素
type NodeWithStatus struct {
	Node   *ContentNode `json:"node"`
	Status ExecStatus   `json:"status"`
}

// 進捗付き一覧取得リクエストDTO
type ListWithProgressRequest struct {
	ParentID string `json:"parent_id" validate:"required"`
	Page     int    `json:"page" validate:"min=1"`
	PageSize int    `json:"page_size" validate:"min=1,max=100"`
}
