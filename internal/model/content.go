// internal/model/content.go
package model

import (
	"time"
)

// NodeKind はコンテンツツリーの階層種別を表します (Program → Session → Exercise)
type NodeKind string

const (
	KindProgram  NodeKind = "PROGRAM"
	KindSession  NodeKind = "SESSION"
	KindExercise NodeKind = "EXERCISE"
)

// ShareScope は公開範囲を表します
type ShareScope string

const (
	ShareAll   ShareScope = "ALL"   // 全ユーザーに公開
	ShareOwner ShareScope = "OWNER" // 作成者のみ
)

// ContentNode はコンテンツツリーの1ノード (Program / Session / Exercise) を表します。
// 種別ごとにスキーマを分けず、1つの構造体を NodeKind で使い分ける。
// Version / IsOldVersion / ParentProgramID / LibProgramID は Program のみ意味を持つ。
type ContentNode struct {
	ID           string     `bson:"_id" json:"id"`
	Kind         NodeKind   `bson:"kind" json:"kind"`
	Name         string     `bson:"name" json:"name"`
	ProgramID    string     `bson:"programId,omitempty" json:"program_id,omitempty"` // Session の親
	SessionID    string     `bson:"sessionId,omitempty" json:"session_id,omitempty"` // Exercise の親
	Order        int        `bson:"order" json:"order"`                              // 兄弟間の順序 (連番である必要はない)
	CreatedBy    string     `bson:"createdBy" json:"-"`
	ShareWith    ShareScope `bson:"shareWith" json:"share_with"`
	IsDeleted    bool       `bson:"isDeleted" json:"-"`
	DeletedAt    *time.Time `bson:"deletedAt,omitempty" json:"-"`
	IsPublic     bool       `bson:"isPublic" json:"is_public"`
	ThumbnailURL string     `bson:"thumbnailUrl,omitempty" json:"thumbnail_url,omitempty"`

	// --- Program 専用フィールド ---
	Version         int    `bson:"version,omitempty" json:"version,omitempty"`
	IsOldVersion    bool   `bson:"isOldVersion,omitempty" json:"is_old_version,omitempty"`
	ParentProgramID string `bson:"parentProgramId,omitempty" json:"parent_program_id,omitempty"`
	LibProgramID    string `bson:"libProgramId,omitempty" json:"lib_program_id,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// ParentID は自ノードの親ノードIDを返します。Program はルートのため空文字。
func (n *ContentNode) ParentID() string {
	switch n.Kind {
	case KindSession:
		return n.ProgramID
	case KindExercise:
		return n.SessionID
	default:
		return ""
	}
}

// VisibleTo はノードがユーザーに可視かどうかを判定します。
// 可視条件: 作成者本人 または shareWith == ALL。
// リポジトリ側の ACL 句 (query.MatchSpec.WithVisibility) と必ず同じ条件であること。
// ロールアップの分子・分母でこの条件がズレると進捗が壊れるため、
// テストで両者の一致を検証している。
func (n *ContentNode) VisibleTo(userID string) bool {
	return n.CreatedBy == userID || n.ShareWith == ShareAll
}

// Lineage は公開バージョン系列を識別するIDを返します。
// ライブラリ原本から公開されたノードは libProgramId、原本自身は自IDが系列ID。
func (n *ContentNode) Lineage() string {
	if n.LibProgramID != "" {
		return n.LibProgramID
	}
	return n.ID
}

// ChildKind は直下の子ノードの種別を返します。Exercise は葉なので ok=false。
func (k NodeKind) ChildKind() (NodeKind, bool) {
	switch k {
	case KindProgram:
		return KindSession, true
	case KindSession:
		return KindExercise, true
	default:
		return "", false
	}
}

// プログラム一覧取得リクエストDTO。
// Name は空文字なら「絞り込みなし」。IsPublic は nil なら絞り込みなし
// (false は「非公開のみ」として有効なフィルタ)。
type ListProgramsRequest struct {
	Name       string `json:"name"`
	IsPublic   *bool  `json:"is_public,omitempty"`
	IncludeOld bool   `json:"include_old"` // 旧バージョンも含めるか
	Page       int    `json:"page" validate:"min=1"`
	PageSize   int    `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ノード更新リクエストDTO。空のフィールドは変更しない。
type UpdateNodeRequest struct {
	Name         string `json:"name" validate:"omitempty,min=1"`
	ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
}

// プログラム公開リクエストDTO
type PublishProgramRequest struct {
	LibProgramID string `json:"lib_program_id" validate:"required"`
	Name         string `json:"name" validate:"omitempty,min=1"`
	ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
}
