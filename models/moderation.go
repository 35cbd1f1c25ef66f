package models

import (
	"context"
	"time"

	"civic-agora/apperror"
	"civic-agora/helpers"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ReviewItem is one unreleased entry waiting for moderation
type ReviewItem struct {
	EntityKind  string             `json:"entityKind"`
	EntityID    primitive.ObjectID `json:"entityID" bson:"_id"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	CreatedTS   time.Time          `json:"createdTS" bson:"-"`
	CreatedName string             `json:"createdName" bson:"-"`
	MetaInfo    Header             `json:"-" bson:"metaInfo"`
}

// Moderation serves the review queue of unapproved entries
// approval itself is done by the entity models (SetApproval)
type Moderation struct {
	collections map[string]*mongo.Collection
}

// SetConnections assigns the votable collections (analogous to the store registry)
func (m *Moderation) SetConnections(collections map[string]*mongo.Collection) {
	m.collections = collections
}

// GetReviewItem draws a random unreleased entry over all votable kinds,
// so concurrent moderators don't all work on the oldest one
func (m *Moderation) GetReviewItem() (*ReviewItem, error) {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for kind, col := range m.collections {

		// https://docs.mongodb.com/manual/reference/operator/aggregation/sample/
		pipeline := mongo.Pipeline{
			bson.D{{Key: "$match", Value: bson.D{{Key: "approved", Value: false}}}},
			bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: 1}}}},
		}

		cursor, err := col.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, helpers.WrapError(err, helpers.FuncName())
		}

		var items []ReviewItem
		err = cursor.All(ctx, &items)
		if err != nil {
			return nil, helpers.WrapError(err, helpers.FuncName())
		}

		if len(items) > 0 {
			item := items[0]
			item.EntityKind = kind
			item.CreatedTS = primitive.ObjectID.Timestamp(item.EntityID)
			item.CreatedName = item.MetaInfo.CreatedName
			return &item, nil
		}
	}

	// nothing left to review
	return nil, apperror.ErrNoData
}
