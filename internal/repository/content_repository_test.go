// internal/repository/content_repository_test.go
package repository

import (
	"testing"

	"go_training_keep/internal/model"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func Test_parentField(t *testing.T) {
	assert.Equal(t, "programId", parentField(model.KindSession))
	assert.Equal(t, "sessionId", parentField(model.KindExercise))
}

// 子ノードの列挙とカウントが同じフィルタ句を共有していることの検証。
// 可視述語が分かれると進捗のロールアップが壊れるため、句の形を固定する。
func Test_childrenMatch(t *testing.T) {
	filter := childrenMatch(model.KindExercise, "sess-1", "user-1").Filter()

	assert.Equal(t, bson.M{
		"sessionId": "sess-1",
		"isDeleted": false,
		"$or": bson.A{
			bson.M{"createdBy": "user-1"},
			bson.M{"shareWith": "ALL"},
		},
	}, filter)
}
