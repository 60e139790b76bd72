// internal/repository/content_repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"go_training_keep/internal/middleware"
	"go_training_keep/internal/model"
	"go_training_keep/internal/query"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ContentRepository はコンテンツツリー (Program / Session / Exercise) への
// 読み書きインターフェース。種別は NodeKind で指定し、コレクションの
// 使い分けはリポジトリ内部に閉じる。
type ContentRepository interface {
	Get(ctx context.Context, kind model.NodeKind, id string) (*model.ContentNode, error)
	FindChildren(ctx context.Context, kind model.NodeKind, parentID, viewerID string) ([]*model.ContentNode, error)
	CountChildren(ctx context.Context, kind model.NodeKind, parentID, viewerID string) (int64, error)
	List(ctx context.Context, kind model.NodeKind, match query.MatchSpec, sort query.SortSpec, page query.Page) ([]*model.ContentNode, error)
	Count(ctx context.Context, kind model.NodeKind, match query.MatchSpec) (int64, error)
	Upsert(ctx context.Context, kind model.NodeKind, match query.MatchSpec, set bson.M) error
	SoftDelete(ctx context.Context, kind model.NodeKind, id string) error
	CountVersions(ctx context.Context, lineageID string) (int64, error)
	MarkOldVersions(ctx context.Context, lineageID string) error
	InsertProgram(ctx context.Context, node *model.ContentNode) error
}

type mongoContentRepository struct {
	db *mongo.Database
}

func NewMongoContentRepository(db *mongo.Database) ContentRepository {
	return &mongoContentRepository{db: db}
}

// collection は種別に対応するコレクションを返します
func (r *mongoContentRepository) collection(kind model.NodeKind) *mongo.Collection {
	switch kind {
	case model.KindProgram:
		return r.db.Collection("programs")
	case model.KindSession:
		return r.db.Collection("sessions")
	default:
		return r.db.Collection("exercises")
	}
}

// parentField は「この種別の子」を親IDで引くときのフィールド名を返します
func parentField(childKind model.NodeKind) string {
	if childKind == model.KindSession {
		return "programId"
	}
	return "sessionId"
}

// childrenMatch は子ノード列挙・集計で共通のフィルタを組み立てます。
// FindChildren と CountChildren が同じ句を使うことが進捗計算の前提。
func childrenMatch(childKind model.NodeKind, parentID, viewerID string) query.MatchSpec {
	return query.MatchSpec{
		parentField(childKind): query.Eq(parentID),
		"isDeleted":            query.Eq(false),
	}.WithVisibility(viewerID)
}

func (r *mongoContentRepository) Get(ctx context.Context, kind model.NodeKind, id string) (*model.ContentNode, error) {
	logger := middleware.GetLogger(ctx)

	var node model.ContentNode
	filter := query.MatchSpec{
		"_id":       query.Eq(id),
		"isDeleted": query.Eq(false),
	}
	err := r.collection(kind).FindOne(ctx, filter.Filter()).Decode(&node)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding content node", "error", err, "kind", kind, "id", id)
		return nil, err
	}
	return &node, nil
}

// FindChildren は親直下の可視ノードを兄弟順で全件返します。
// 進捗エンジンは READY の位置決めに全体の並びを使うため、ここでは
// ページングしない (一覧APIのページ切り出しは呼び出し側の責務)。
func (r *mongoContentRepository) FindChildren(ctx context.Context, kind model.NodeKind, parentID, viewerID string) ([]*model.ContentNode, error) {
	childKind, ok := kind.ChildKind()
	if !ok {
		return nil, model.ErrInvalidInput
	}

	// order 昇順、同順は _id で決定的に
	sort := query.SortSpec{query.Asc("order"), query.Asc("_id")}
	pipeline := query.Compile(childrenMatch(childKind, parentID, viewerID), sort, query.Page{}, nil)

	cur, err := r.collection(childKind).Aggregate(ctx, pipeline)
	if err != nil {
		middleware.GetLogger(ctx).Error("Error aggregating children", "error", err, "kind", childKind, "parent_id", parentID)
		return nil, err
	}
	var nodes []*model.ContentNode
	if err := cur.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *mongoContentRepository) CountChildren(ctx context.Context, kind model.NodeKind, parentID, viewerID string) (int64, error) {
	childKind, ok := kind.ChildKind()
	if !ok {
		return 0, model.ErrInvalidInput
	}
	return r.Count(ctx, childKind, childrenMatch(childKind, parentID, viewerID))
}

func (r *mongoContentRepository) List(ctx context.Context, kind model.NodeKind, match query.MatchSpec, sort query.SortSpec, page query.Page) ([]*model.ContentNode, error) {
	pipeline := query.Compile(match, sort, page, nil)
	cur, err := r.collection(kind).Aggregate(ctx, pipeline)
	if err != nil {
		middleware.GetLogger(ctx).Error("Error listing content nodes", "error", err, "kind", kind)
		return nil, err
	}
	var nodes []*model.ContentNode
	if err := cur.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *mongoContentRepository) Count(ctx context.Context, kind model.NodeKind, match query.MatchSpec) (int64, error) {
	count, err := r.collection(kind).CountDocuments(ctx, match.Filter())
	if err != nil {
		middleware.GetLogger(ctx).Error("Error counting content nodes", "error", err, "kind", kind)
		return 0, err
	}
	return count, nil
}

func (r *mongoContentRepository) Upsert(ctx context.Context, kind model.NodeKind, match query.MatchSpec, set bson.M) error {
	set["updatedAt"] = time.Now()
	_, err := r.collection(kind).UpdateOne(ctx, match.Filter(), bson.M{"$set": set},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		middleware.GetLogger(ctx).Error("Error upserting content node", "error", err, "kind", kind)
	}
	return err
}

// SoftDelete はノードと配下ノードを論理削除します。
// カスケードは階層ごとの UpdateMany によるベストエフォートで、
// トランザクションは張らない。途中で失敗しても読み取り側は
// isDeleted=false かつ親が生きているノードしか辿らないため破綻しない。
func (r *mongoContentRepository) SoftDelete(ctx context.Context, kind model.NodeKind, id string) error {
	logger := middleware.GetLogger(ctx)
	now := time.Now()
	mark := bson.M{"$set": bson.M{"isDeleted": true, "deletedAt": now}}

	if _, err := r.collection(kind).UpdateOne(ctx, bson.M{"_id": id}, mark); err != nil {
		logger.Error("Error soft-deleting node", "error", err, "kind", kind, "id", id)
		return err
	}

	switch kind {
	case model.KindProgram:
		// 配下セッションのIDを集めてから2階層まとめて削除マーク
		cur, err := r.collection(model.KindSession).Find(ctx, bson.M{"programId": id})
		if err != nil {
			logger.Warn("Cascade halted: failed to list sessions", "error", err, "program_id", id)
			return err
		}
		var sessions []*model.ContentNode
		if err := cur.All(ctx, &sessions); err != nil {
			return err
		}
		if _, err := r.collection(model.KindSession).UpdateMany(ctx, bson.M{"programId": id}, mark); err != nil {
			logger.Warn("Cascade partial failure on sessions", "error", err, "program_id", id)
			return err
		}
		sessionIDs := make([]string, 0, len(sessions))
		for _, s := range sessions {
			sessionIDs = append(sessionIDs, s.ID)
		}
		if len(sessionIDs) > 0 {
			if _, err := r.collection(model.KindExercise).UpdateMany(ctx, bson.M{"sessionId": bson.M{"$in": sessionIDs}}, mark); err != nil {
				logger.Warn("Cascade partial failure on exercises", "error", err, "program_id", id)
				return err
			}
		}
	case model.KindSession:
		if _, err := r.collection(model.KindExercise).UpdateMany(ctx, bson.M{"sessionId": id}, mark); err != nil {
			logger.Warn("Cascade partial failure on exercises", "error", err, "session_id", id)
			return err
		}
	}
	return nil
}

// lineageFilter は同一公開系列の Program を引くフィルタ
func lineageFilter(lineageID string) bson.M {
	return bson.M{"libProgramId": lineageID, "isDeleted": false}
}

func (r *mongoContentRepository) CountVersions(ctx context.Context, lineageID string) (int64, error) {
	count, err := r.collection(model.KindProgram).CountDocuments(ctx, lineageFilter(lineageID))
	if err != nil {
		middleware.GetLogger(ctx).Error("Error counting versions", "error", err, "lineage_id", lineageID)
		return 0, err
	}
	return count, nil
}

func (r *mongoContentRepository) MarkOldVersions(ctx context.Context, lineageID string) error {
	_, err := r.collection(model.KindProgram).UpdateMany(ctx, lineageFilter(lineageID),
		bson.M{"$set": bson.M{"isOldVersion": true, "updatedAt": time.Now()}})
	if err != nil {
		middleware.GetLogger(ctx).Error("Error marking old versions", "error", err, "lineage_id", lineageID)
	}
	return err
}

func (r *mongoContentRepository) InsertProgram(ctx context.Context, node *model.ContentNode) error {
	_, err := r.collection(model.KindProgram).InsertOne(ctx, node)
	if err != nil {
		middleware.GetLogger(ctx).Error("Error inserting program version", "error", err, "program_id", node.ID)
	}
	return err
}
