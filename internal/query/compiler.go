// internal/query/compiler.go
package query

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go_training_keep/internal/model"
)

// 条件の種別。フィールド値の実行時型から推測するのではなく、
// 呼び出し側がコンストラクタ (Eq / In / Raw / Absent) で明示的に選ぶ。
type condKind int

const (
	condAbsent condKind = iota // フィールドごと条件から除外
	condEq                     // 等価条件
	condIn                     // $in (配列メンバーシップ)
	condRaw                    // 演算子式をそのまま透過 ($gte, $ne など)
)

// Cond は1フィールド分のフィルタ条件を表します
type Cond struct {
	kind  condKind
	value any
}

// Eq は等価条件を作成します。数値・文字列・真偽値いずれも可。
// 空文字との等価比較が必要な場合もそのまま Eq("") と書ける。
func Eq(v any) Cond {
	return Cond{kind: condEq, value: v}
}

// EqString は文字列の等価条件を作成します。
// 空文字は「フィルタなし」とみなしてフィールドごと落とす規約。
// ユーザー入力をそのまま流し込む呼び出し元向けで、
// 本当に空文字と比較したい場合は Eq("") を使うこと。
func EqString(s string) Cond {
	if s == "" {
		return Absent()
	}
	return Cond{kind: condEq, value: s}
}

// In はメンバーシップ条件 ($in) を作成します
func In[T any](vs []T) Cond {
	return Cond{kind: condIn, value: vs}
}

// Raw は構築済みの演算子式をそのまま条件として使います。
// 式の中身は検証しない。
func Raw(expr any) Cond {
	return Cond{kind: condRaw, value: expr}
}

// Absent は「このフィールドでは絞り込まない」ことを表します
func Absent() Cond {
	return Cond{kind: condAbsent}
}

// MatchSpec はフィールド名→条件のマッピング
type MatchSpec map[string]Cond

// WithVisibility は ACL 句 (作成者本人 または shareWith == ALL) を追加します。
// ContentNode.VisibleTo と同一の条件。ロールアップの件数集計も必ず
// この句を経由させ、可視判定が一箇所になるようにしている。
func (m MatchSpec) WithVisibility(userID string) MatchSpec {
	m["$or"] = Raw(bson.A{
		bson.M{"createdBy": userID},
		bson.M{"shareWith": string(model.ShareAll)},
	})
	return m
}

// Filter は $match ステージおよび CountDocuments に渡せるフィルタを組み立てます。
// Absent の条件はフィールドごと除外される。
func (m MatchSpec) Filter() bson.M {
	filter := bson.M{}
	for field, c := range m {
		switch c.kind {
		case condAbsent:
			continue
		case condEq:
			filter[field] = c.value
		case condIn:
			filter[field] = bson.M{"$in": c.value}
		case condRaw:
			filter[field] = c.value
		}
	}
	return filter
}

// SortKey はソート条件の1要素
type SortKey struct {
	Field string
	Desc  bool
	meta  bool // テキスト検索スコアでのソート
}

func Asc(field string) SortKey {
	return SortKey{Field: field}
}

func Desc(field string) SortKey {
	return SortKey{Field: field, Desc: true}
}

// TextScore は全文検索の関連度スコアによるソートを表します
func TextScore(field string) SortKey {
	return SortKey{Field: field, meta: true}
}

// SortSpec は優先順のソートキー列。bson.D に変換されるため順序が保持される。
type SortSpec []SortKey

func (s SortSpec) doc() bson.D {
	d := make(bson.D, 0, len(s))
	for _, k := range s {
		switch {
		case k.meta:
			d = append(d, bson.E{Key: k.Field, Value: bson.M{"$meta": "textScore"}})
		case k.Desc:
			d = append(d, bson.E{Key: k.Field, Value: -1})
		default:
			d = append(d, bson.E{Key: k.Field, Value: 1})
		}
	}
	return d
}

// Page は1始まりのページ番号とページサイズ
type Page struct {
	Number int
	Size   int
}

// Skip は読み飛ばす件数 (= 前ページまでの累積件数)
func (p Page) Skip() int64 {
	return int64(p.Number-1) * int64(p.Size)
}

// Limit は $limit ステージに渡す件数。常にページサイズと一致し、
// 2ページ目以降でも返る件数は Size を超えない。回帰テストで固定している。
func (p Page) Limit() int64 {
	return int64(p.Size)
}

// Compile は宣言的なクエリ指定を集約パイプラインに変換します。
// ステージ順は [$match, $sort, $skip, $limit, $project?] で固定。
// I/O は行わない純粋な変換。
func Compile(match MatchSpec, sort SortSpec, page Page, projection bson.M) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match.Filter()}},
	}
	if len(sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sort.doc()}})
	}
	if page.Size > 0 {
		pipeline = append(pipeline,
			bson.D{{Key: "$skip", Value: page.Skip()}},
			bson.D{{Key: "$limit", Value: page.Limit()}},
		)
	}
	if len(projection) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: projection}})
	}
	return pipeline
}
