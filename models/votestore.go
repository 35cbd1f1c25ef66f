package models

import (
	"context"
	"log"
	"time"

	"civic-agora/apperror"
	"civic-agora/helpers"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// vote record operation within a change
const (
	voteOpInsert = iota
	voteOpUpdate
	voteOpDelete
)

// VoteChange is the atomic unit the engine hands to the store: exactly one
// record operation plus the matching counter deltas. Either everything
// becomes visible or nothing does.
type VoteChange struct {
	EntityKind string
	EntityID   primitive.ObjectID
	UserID     primitive.ObjectID
	UserName   string

	Op         int
	PrevStored string // raw stored vote value; guards update/delete against concurrent writers
	NewType    string // canonical value to write (insert/update)

	SupportDelta    int64
	OppositionDelta int64
}

// VoteStore is the transactional surface the vote engine needs. The mongo
// implementation below is used in production; the tests run the engine
// against an in-memory fake with the same contract.
type VoteStore interface {
	GetEntityCounts(ctx context.Context, entityKind string, entityID primitive.ObjectID) (*EntityCounts, error)
	GetVote(ctx context.Context, entityKind string, entityID primitive.ObjectID, userID primitive.ObjectID) (*VoteRecord, error)
	GetUserVotes(ctx context.Context, entityKind string, userID primitive.ObjectID) ([]UserVote, error)
	// Apply commits a change all-or-nothing and returns the fresh counters.
	// A guarded write that doesn't match reports apperror.ErrRecordChanged.
	Apply(ctx context.Context, change *VoteChange) (*EntityCounts, error)
	// Canonicalize rewrites a legacy vote value to its current name,
	// best-effort (failures are ignored, read-time translation suffices)
	Canonicalize(ctx context.Context, entityKind string, entityID primitive.ObjectID, userID primitive.ObjectID)
	DeleteEntityVotes(ctx context.Context, entityKind string, entityID primitive.ObjectID) (int64, error)
	CountVotes(ctx context.Context, entityKind string, entityID primitive.ObjectID) (support int64, opposition int64, err error)
}

// MongoVoteStore implements VoteStore on the shared MongoDB connection.
// Entities maps a votable kind to its collection - this registry is the
// whole "parameterization by kind", the operations are generic.
type MongoVoteStore struct {
	Client   *mongo.Client
	Votes    *mongo.Collection
	Entities map[string]*mongo.Collection
}

func (s *MongoVoteStore) entityCol(entityKind string) (*mongo.Collection, error) {
	col, ok := s.Entities[entityKind]
	if !ok {
		return nil, ErrEntityKindInvalid
	}
	return col, nil
}

var entityCountFields = bson.D{
	{Key: "_id", Value: 1},
	{Key: "approved", Value: 1},
	{Key: "supportCount", Value: 1},
	{Key: "oppositionCount", Value: 1},
}

// GetEntityCounts reads the ledger fields of a votable entity
func (s *MongoVoteStore) GetEntityCounts(ctx context.Context, entityKind string, entityID primitive.ObjectID) (*EntityCounts, error) {

	col, err := s.entityCol(entityKind)
	if err != nil {
		return nil, err
	}

	var counts EntityCounts

	opts := options.FindOne().SetProjection(entityCountFields)
	err = col.FindOne(ctx, bson.M{"_id": entityID}, opts).Decode(&counts)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperror.ErrNoData
		}
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	return &counts, nil
}

// GetVote looks up the live record for one (entityKind, entityID, userID) key
func (s *MongoVoteStore) GetVote(ctx context.Context, entityKind string, entityID primitive.ObjectID, userID primitive.ObjectID) (*VoteRecord, error) {

	var rec VoteRecord

	err := s.Votes.FindOne(ctx, voteKey(entityKind, entityID, userID)).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperror.ErrNoData
		}
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	return &rec, nil
}

// GetUserVotes returns the votes of a user to entities of one kind
func (s *MongoVoteStore) GetUserVotes(ctx context.Context, entityKind string, userID primitive.ObjectID) ([]UserVote, error) {

	filter := bson.D{
		{Key: "userID", Value: userID},
		{Key: "entityKind", Value: entityKind},
	}

	fields := bson.D{
		{Key: "_id", Value: 0},
		{Key: "entityID", Value: 1},
		{Key: "voteType", Value: 1},
	}

	opts := options.Find().SetProjection(fields).SetLimit(20)

	cursor, err := s.Votes.Find(ctx, filter, opts)
	if err != nil {
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	var votes []UserVote
	err = cursor.All(ctx, &votes)
	if err != nil {
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	return votes, nil
}

// Apply commits the record operation and the counter deltas in one mongo
// transaction. The writes are additionally CAS-guarded (unique key on
// insert, previous stored value on update/delete, floor guard on
// decrements), so correctness doesn't hinge on the transaction isolation
// alone - a guard miss aborts the transaction with ErrRecordChanged and the
// engine recomputes.
func (s *MongoVoteStore) Apply(ctx context.Context, change *VoteChange) (*EntityCounts, error) {

	col, err := s.entityCol(change.EntityKind)
	if err != nil {
		return nil, err
	}

	sess, err := s.Client.StartSession()
	if err != nil {
		return nil, apperror.ErrUnavailable
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {

		if err := s.applyRecord(sc, change); err != nil {
			return nil, err
		}

		if err := s.applyCounters(sc, col, change); err != nil {
			return nil, err
		}

		// read back the fresh counters within the same transaction
		var counts EntityCounts
		opts := options.FindOne().SetProjection(entityCountFields)
		if err := col.FindOne(sc, bson.M{"_id": change.EntityID}, opts).Decode(&counts); err != nil {
			return nil, helpers.WrapError(err, helpers.FuncName())
		}
		return &counts, nil
	})
	if err != nil {
		return nil, err
	}

	return res.(*EntityCounts), nil
}

// applyRecord performs the create/update/delete of the vote record
func (s *MongoVoteStore) applyRecord(ctx context.Context, change *VoteChange) error {

	now := time.Now()

	switch change.Op {
	case voteOpInsert:
		rec := VoteRecord{
			ID:         primitive.NewObjectID(),
			EntityKind: change.EntityKind,
			EntityID:   change.EntityID,
			UserID:     change.UserID,
			UserName:   change.UserName,
			VoteType:   change.NewType,
			VoteTS:     now,
			ModifiedTS: now,
		}
		_, err := s.Votes.InsertOne(ctx, rec)
		if err != nil {
			if isDuplicateKey(err) {
				// another request added a record for this key first
				return apperror.ErrRecordChanged
			}
			return helpers.WrapError(err, helpers.FuncName())
		}

	case voteOpUpdate:
		filter := append(voteKey(change.EntityKind, change.EntityID, change.UserID),
			bson.E{Key: "voteType", Value: change.PrevStored})
		update := bson.D{{Key: "$set", Value: bson.D{
			{Key: "voteType", Value: change.NewType},
			{Key: "modifiedTS", Value: now},
		}}}
		res, err := s.Votes.UpdateOne(ctx, filter, update)
		if err != nil {
			return helpers.WrapError(err, helpers.FuncName())
		}
		if res.MatchedCount == 0 {
			// the record moved under us (changed or withdrawn concurrently)
			return apperror.ErrRecordChanged
		}

	case voteOpDelete:
		filter := append(voteKey(change.EntityKind, change.EntityID, change.UserID),
			bson.E{Key: "voteType", Value: change.PrevStored})
		res, err := s.Votes.DeleteOne(ctx, filter)
		if err != nil {
			return helpers.WrapError(err, helpers.FuncName())
		}
		if res.DeletedCount == 0 {
			return apperror.ErrRecordChanged
		}
	}

	return nil
}

// applyCounters increments/decrements the entity's counters atomically.
// A decrement carries a floor guard - matching zero rows with the entity
// still present means the ledger was already corrupt (ErrOutOfSync).
func (s *MongoVoteStore) applyCounters(ctx context.Context, col *mongo.Collection, change *VoteChange) error {

	filter := bson.D{{Key: "_id", Value: change.EntityID}}
	if change.SupportDelta < 0 {
		filter = append(filter, bson.E{Key: "supportCount",
			Value: bson.D{{Key: "$gte", Value: -change.SupportDelta}}})
	}
	if change.OppositionDelta < 0 {
		filter = append(filter, bson.E{Key: "oppositionCount",
			Value: bson.D{{Key: "$gte", Value: -change.OppositionDelta}}})
	}

	update := bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "supportCount", Value: change.SupportDelta},
			{Key: "oppositionCount", Value: change.OppositionDelta},
		}},
		{Key: "$set", Value: bson.D{
			{Key: "metaInfo.touchedTS", Value: time.Now()},
		}},
	}

	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return helpers.WrapError(err, helpers.FuncName())
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// no match: either the entity is gone or a counter would have gone negative
	err = col.FindOne(ctx, bson.D{{Key: "_id", Value: change.EntityID}},
		options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Err()
	if err == mongo.ErrNoDocuments {
		return apperror.ErrNoData
	}
	if err != nil {
		return helpers.WrapError(err, helpers.FuncName())
	}

	log.Printf("%s: counter underflow on %s/%s", helpers.FuncName(), change.EntityKind, change.EntityID.Hex())
	return apperror.ErrOutOfSync
}

// Canonicalize rewrites the deprecated vote value in place, fire-and-forget
func (s *MongoVoteStore) Canonicalize(ctx context.Context, entityKind string, entityID primitive.ObjectID, userID primitive.ObjectID) {

	filter := append(voteKey(entityKind, entityID, userID),
		bson.E{Key: "voteType", Value: voteLegacyOpposition})
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "voteType", Value: VoteOpposition},
	}}}

	// if this races with a cast, the guarded write simply matches nothing
	_, _ = s.Votes.UpdateOne(ctx, filter, update)
}

// DeleteEntityVotes removes all records of an entity (cascade on delete)
func (s *MongoVoteStore) DeleteEntityVotes(ctx context.Context, entityKind string, entityID primitive.ObjectID) (int64, error) {

	filter := bson.D{
		{Key: "entityKind", Value: entityKind},
		{Key: "entityID", Value: entityID},
	}

	res, err := s.Votes.DeleteMany(ctx, filter)
	if err != nil {
		return 0, helpers.WrapError(err, helpers.FuncName())
	}

	return res.DeletedCount, nil
}

// CountVotes recounts the records per bucket (audit only, not used to keep
// the counters - those are maintained incrementally)
func (s *MongoVoteStore) CountVotes(ctx context.Context, entityKind string, entityID primitive.ObjectID) (support int64, opposition int64, err error) {

	matchStage := bson.D{
		{Key: "$match", Value: bson.D{
			{Key: "entityKind", Value: entityKind},
			{Key: "entityID", Value: entityID},
		}},
	}

	// https://stackoverflow.com/questions/23116330/mongodb-select-count-group-by
	groupStage := bson.D{
		{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$voteType"},
			{Key: "count", Value: bson.D{
				{Key: "$sum", Value: 1},
			}},
		}},
	}

	opts := options.Aggregate().SetMaxTime(5 * time.Second)

	cursor, err := s.Votes.Aggregate(ctx, mongo.Pipeline{matchStage, groupStage}, opts)
	if err != nil {
		return 0, 0, helpers.WrapError(err, helpers.FuncName())
	}

	var buckets []struct {
		VoteType string `bson:"_id"`
		Count    int64  `bson:"count"`
	}
	err = cursor.All(ctx, &buckets)
	if err != nil {
		return 0, 0, helpers.WrapError(err, helpers.FuncName())
	}

	for _, b := range buckets {
		// legacy records count into the opposition bucket
		switch NormalizeVoteType(b.VoteType) {
		case VoteSupport:
			support += b.Count
		case VoteOpposition:
			opposition += b.Count
		}
	}

	return support, opposition, nil
}

func voteKey(entityKind string, entityID primitive.ObjectID, userID primitive.ObjectID) bson.D {
	return bson.D{
		{Key: "entityKind", Value: entityKind},
		{Key: "entityID", Value: entityID},
		{Key: "userID", Value: userID},
	}
}

// isDuplicateKey detects a unique-index violation (error 11000)
// https://stackoverflow.com/questions/56916969/with-mongodb-go-driver-how-do-i-get-the-inner-exceptions
func isDuplicateKey(err error) bool {
	we, ok := err.(mongo.WriteException)
	if !ok {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 11000 {
			return true
		}
	}
	return false
}
