package models

import (
	"context"
	"strings"
	"time"

	"civic-agora/apperror"
	"civic-agora/database"
	"civic-agora/helpers"
	"civic-agora/lookups"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Boycott is the "interface" used for client communication
// structurally close to Protest but kept separate - the kinds will diverge
// (target company data, alternatives, outcome tracking)
type Boycott struct {
	ID              primitive.ObjectID `json:"id" bson:"_id"`
	MetaInfo        Header             `json:"metaInfo" bson:"metaInfo"`
	Title           string             `json:"title" bson:"title"`
	Description     string             `json:"description" bson:"description"`
	TargetName      string             `json:"targetName" bson:"targetName"` // the boycotted company/product
	CategoryCode    int32              `json:"categoryCode" bson:"categoryCD"`
	CategoryText    string             `json:"categoryText" bson:"-"`
	Approved        bool               `json:"approved" bson:"approved"`
	SupportCount    int64              `json:"supportCount" bson:"supportCount"`
	OppositionCount int64              `json:"oppositionCount" bson:"oppositionCount"`
	UserVote        string             `json:"userVote,omitempty" bson:"-"`
}

// BoycottModel provides the logic to the interface and access to the database
type BoycottModel struct {
	Client            *mongo.Client
	Collection        *mongo.Collection
	GetUserName       func(ID string) (string, error)
	CredentialsReader func(userID string) (*Credentials, error)
	GetUserVote       func(entityKind string, entityID string, userID string) (string, error)
	DeleteVotes       func(ctx context.Context, entityKind string, entityID primitive.ObjectID) (int64, error)
	TrackVisit        func(entityKind string, entityID string, userID string)
}

// Validate checks given values and sets defaults where applicable (immutable)
func (m BoycottModel) Validate(boycott Boycott) (*Boycott, error) {

	cleaned := boycott

	cleaned.Title = strings.TrimSpace(cleaned.Title)
	if cleaned.Title == "" {
		return nil, ErrTitleMissing
	}

	cleaned.TargetName = strings.TrimSpace(cleaned.TargetName)
	if cleaned.TargetName == "" {
		return nil, ErrTargetMissing
	}

	cleaned.Description = strings.TrimSpace(cleaned.Description)

	if database.GetLookupText(lookups.LookupType(lookups.LTcategory), cleaned.CategoryCode) == "" {
		cleaned.CategoryCode = lookups.CategoryConsumer
	}

	return &cleaned, nil
}

// Create adds a new boycott - validated by controller
func (m BoycottModel) Create(boycott *Boycott, userID string) (string, error) {

	userName, err := m.GetUserName(userID)
	if err != nil {
		return "", ErrInvalidUser
	}

	// set "system-fields"
	boycott.ID = primitive.NewObjectID()
	boycott.MetaInfo.CreatedID = ObjectID(userID)
	boycott.MetaInfo.CreatedName = userName
	boycott.MetaInfo.TouchedTS = time.Now()
	boycott.MetaInfo.RecVer = 1
	boycott.MetaInfo.Visits = 0
	boycott.Approved = false
	boycott.SupportCount = 0
	boycott.OppositionCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := m.Collection.InsertOne(ctx, boycott)
	if err != nil {
		return "", helpers.WrapError(err, helpers.FuncName())
	}

	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

// List returns the approved boycotts, most supported first
// with a userID the user's own vote is attached to every item
func (m BoycottModel) List(userID string) ([]Boycott, error) {

	fields := bson.D{
		{Key: "_id", Value: 1},
		{Key: "metaInfo", Value: 1},
		{Key: "title", Value: 1},
		{Key: "targetName", Value: 1},
		{Key: "categoryCD", Value: 1},
		{Key: "supportCount", Value: 1},
		{Key: "oppositionCount", Value: 1},
	}

	sort := bson.D{
		{Key: "supportCount", Value: -1},
		{Key: "metaInfo.touchedTS", Value: -1},
	}

	opts := options.Find().SetProjection(fields).SetLimit(20).SetSort(sort)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := m.Collection.Find(ctx, bson.M{"approved": true}, opts)
	if err != nil {
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	var boycotts []Boycott

	err = cursor.All(ctx, &boycotts)
	if err != nil {
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	// check for empty result set (no error raised by find)
	if boycotts == nil {
		return nil, apperror.ErrNoData
	}

	for i := range boycotts {
		boycotts[i].MetaInfo.CreatedTS = primitive.ObjectID.Timestamp(boycotts[i].ID)
		boycotts[i].CategoryText = database.GetLookupText(lookups.LookupType(lookups.LTcategory), boycotts[i].CategoryCode)
		if userID != "" {
			boycotts[i].UserVote, _ = m.GetUserVote(KindBoycott, boycotts[i].ID.Hex(), userID)
		}
	}

	return boycotts, nil
}

// GetByID returns one boycott
func (m BoycottModel) GetByID(boycottID string, userID string) (*Boycott, error) {

	id := ObjectID(boycottID)
	if id.IsZero() {
		return nil, ErrEntityNotFound
	}

	data := Boycott{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&data)
	if err != nil {
		return nil, ErrEntityNotFound
	}

	if !data.Approved {
		if err := m.mayModify(&data, userID); err != nil {
			return nil, ErrEntityNotFound
		}
	}

	data.MetaInfo.CreatedTS = primitive.ObjectID.Timestamp(data.ID)
	data.CategoryText = database.GetLookupText(lookups.LookupType(lookups.LTcategory), data.CategoryCode)

	if userID != "" {
		data.UserVote, _ = m.GetUserVote(KindBoycott, boycottID, userID)
	}

	if m.TrackVisit != nil {
		m.TrackVisit(KindBoycott, boycottID, userID)
	}

	return &data, nil
}

// Update modifies the user-editable fields of a boycott
func (m BoycottModel) Update(boycott *Boycott, userID string) error {

	current, err := m.GetByID(boycott.ID.Hex(), userID)
	if err != nil {
		return err
	}

	if err := m.mayModify(current, userID); err != nil {
		return err
	}

	userName, err := m.GetUserName(userID)
	if err != nil {
		return ErrInvalidUser
	}

	filter := bson.D{
		{Key: "_id", Value: boycott.ID},
		{Key: "metaInfo.recVer", Value: boycott.MetaInfo.RecVer}, // optimistic locking
	}

	now := time.Now()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "title", Value: boycott.Title},
			{Key: "description", Value: boycott.Description},
			{Key: "targetName", Value: boycott.TargetName},
			{Key: "categoryCD", Value: boycott.CategoryCode},
			{Key: "metaInfo.modifiedTS", Value: now},
			{Key: "metaInfo.modifiedID", Value: ObjectID(userID)},
			{Key: "metaInfo.modifiedName", Value: userName},
			{Key: "metaInfo.touchedTS", Value: now},
		}},
		{Key: "$inc", Value: bson.D{
			{Key: "metaInfo.recVer", Value: 1},
		}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := m.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return helpers.WrapError(err, helpers.FuncName())
	}

	if result.MatchedCount == 0 {
		return apperror.ErrRecordChanged
	}

	return nil
}

// SetApproval releases or withdraws a boycott for voting (admins only)
func (m BoycottModel) SetApproval(boycottID string, approved bool, userID string) error {

	credentials, err := m.CredentialsReader(userID)
	if err != nil {
		return ErrInvalidUser
	}
	if credentials.RoleCode != lookups.UserRoleAdmin {
		return apperror.ErrDenied
	}

	filter := bson.D{{Key: "_id", Value: ObjectID(boycottID)}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "approved", Value: approved},
		{Key: "metaInfo.touchedTS", Value: time.Now()},
	}}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := m.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return helpers.WrapError(err, helpers.FuncName())
	}

	if result.MatchedCount == 0 {
		return ErrEntityNotFound
	}

	return nil
}

// Delete removes a boycott and cascades to its vote records in one transaction
func (m BoycottModel) Delete(boycottID string, userID string) error {

	current, err := m.GetByID(boycottID, userID)
	if err != nil {
		return err
	}

	if err := m.mayModify(current, userID); err != nil {
		return err
	}

	sess, err := m.Client.StartSession()
	if err != nil {
		return apperror.ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {

		res, err := m.Collection.DeleteOne(sc, bson.M{"_id": current.ID})
		if err != nil {
			return nil, helpers.WrapError(err, helpers.FuncName())
		}
		if res.DeletedCount == 0 {
			return nil, ErrEntityNotFound
		}

		_, err = m.DeleteVotes(sc, KindBoycott, current.ID)
		if err != nil {
			return nil, err
		}

		return nil, nil
	})

	return err
}

// mayModify implements the owner-or-admin rule
func (m BoycottModel) mayModify(boycott *Boycott, userID string) error {

	if boycott.MetaInfo.CreatedID.Hex() == userID {
		return nil
	}

	credentials, err := m.CredentialsReader(userID)
	if err != nil {
		return ErrInvalidUser
	}
	if credentials.RoleCode != lookups.UserRoleAdmin {
		return apperror.ErrDenied
	}

	return nil
}
