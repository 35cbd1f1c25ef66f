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

// Protest is the "interface" used for client communication
type Protest struct {
	ID              primitive.ObjectID `json:"id" bson:"_id"`
	MetaInfo        Header             `json:"metaInfo" bson:"metaInfo"`
	Title           string             `json:"title" bson:"title"`
	Description     string             `json:"description" bson:"description"`
	CategoryCode    int32              `json:"categoryCode" bson:"categoryCD"`
	CategoryText    string             `json:"categoryText" bson:"-"`
	Location        string             `json:"location" bson:"location"`
	StartTS         time.Time          `json:"startTS" bson:"startTS,omitempty"`
	Approved        bool               `json:"approved" bson:"approved"`
	SupportCount    int64              `json:"supportCount" bson:"supportCount"`
	OppositionCount int64              `json:"oppositionCount" bson:"oppositionCount"`
	UserVote        string             `json:"userVote,omitempty" bson:"-"` // requesting user's own vote, set on reads
}

// ProtestListItem is the reduced/simplified model used for listings
type ProtestListItem struct {
	ID              primitive.ObjectID `json:"id"`
	CreatedTS       time.Time          `json:"createdTS"`
	CreatedID       primitive.ObjectID `json:"createdID"`
	CreatedName     string             `json:"createdName"`
	Title           string             `json:"title"`
	CategoryCode    int32              `json:"categoryCode"`
	CategoryText    string             `json:"categoryText"`
	Location        string             `json:"location"`
	SupportCount    int64              `json:"supportCount"`
	OppositionCount int64              `json:"oppositionCount"`
	UserVote        string             `json:"userVote,omitempty"`
}

// ProtestSearch is passed as the search params
type ProtestSearch struct {
	UserID       string // used to look-up role and the user's own votes
	CategoryText string // client should pass readable text in URL rather than codes
	SearchTerm   string
}

// ProtestModel provides the logic to the interface and access to the database
type ProtestModel struct {
	Client     *mongo.Client
	Collection *mongo.Collection
	// some information is owned by other models and referenced here
	GetUserName       func(ID string) (string, error)
	CredentialsReader func(userID string) (*Credentials, error)
	GetUserVote       func(entityKind string, entityID string, userID string) (string, error)
	DeleteVotes       func(ctx context.Context, entityKind string, entityID primitive.ObjectID) (int64, error)
	TrackVisit        func(entityKind string, entityID string, userID string)
}

// Validate checks given values and sets defaults where applicable (immutable)
func (m ProtestModel) Validate(protest Protest) (*Protest, error) {

	cleaned := protest

	cleaned.Title = strings.TrimSpace(cleaned.Title)
	if cleaned.Title == "" {
		return nil, ErrTitleMissing
	}

	cleaned.Description = strings.TrimSpace(cleaned.Description)
	cleaned.Location = strings.TrimSpace(cleaned.Location)

	if database.GetLookupText(lookups.LookupType(lookups.LTcategory), cleaned.CategoryCode) == "" {
		cleaned.CategoryCode = lookups.CategoryOther
	}

	return &cleaned, nil
}

// Create adds a new protest - validated by controller
// new entries always start unapproved and with zeroed counters, no votes can
// be cast until moderation released them
func (m ProtestModel) Create(protest *Protest, userID string) (string, error) {

	userName, err := m.GetUserName(userID)
	if err != nil {
		return "", ErrInvalidUser
	}

	// set "system-fields"
	protest.ID = primitive.NewObjectID()
	protest.MetaInfo.CreatedID = ObjectID(userID)
	protest.MetaInfo.CreatedName = userName
	protest.MetaInfo.TouchedTS = time.Now()
	protest.MetaInfo.RecVer = 1
	protest.MetaInfo.Visits = 0
	protest.Approved = false
	protest.SupportCount = 0
	protest.OppositionCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := m.Collection.InsertOne(ctx, protest)
	if err != nil {
		return "", helpers.WrapError(err, helpers.FuncName())
	}

	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

// Search lists or searches protests
// anonymous callers see approved entries only; with a userID the user's own
// vote is attached to every item
func (m ProtestModel) Search(searchSpecs *ProtestSearch) ([]ProtestListItem, error) {

	// use original struct to receive selected fields
	fields := bson.D{
		{Key: "_id", Value: 1},
		{Key: "metaInfo", Value: 1},
		{Key: "title", Value: 1},
		{Key: "categoryCD", Value: 1},
		{Key: "location", Value: 1},
		{Key: "supportCount", Value: 1},
		{Key: "oppositionCount", Value: 1},
	}

	sort := bson.D{
		{Key: "supportCount", Value: -1},
		{Key: "metaInfo.touchedTS", Value: -1},
	}

	opts := options.Find().SetProjection(fields).SetLimit(20).SetSort(sort)

	filter := bson.D{
		{Key: "approved", Value: true},
	}

	if searchSpecs.CategoryText != "" {
		categoryCode, err := database.GetLookupValue(lookups.LookupType(lookups.LTcategory), searchSpecs.CategoryText)
		if err == nil {
			filter = append(filter, bson.E{Key: "categoryCD", Value: categoryCode})
		}
	}

	if searchSpecs.SearchTerm != "" {
		// LIKE %searchTerm% (case-insensitive)
		// https://stackoverflow.com/questions/3305561/how-to-query-mongodb-with-like
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: primitive.Regex{Pattern: ".*" + searchSpecs.SearchTerm + ".*", Options: "i"}}},
			bson.D{{Key: "location", Value: primitive.Regex{Pattern: ".*" + searchSpecs.SearchTerm + ".*", Options: "i"}}},
		}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := m.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	var protests []Protest

	err = cursor.All(ctx, &protests)
	if err != nil {
		return nil, helpers.WrapError(err, helpers.FuncName())
	}

	// check for empty result set (no error raised by find)
	if protests == nil {
		return nil, apperror.ErrNoData
	}

	// copy data to reduced list-struct
	var protestList []ProtestListItem
	var item ProtestListItem

	for _, v := range protests {
		item.ID = v.ID
		item.CreatedTS = primitive.ObjectID.Timestamp(v.ID)
		item.CreatedID = v.MetaInfo.CreatedID
		item.CreatedName = v.MetaInfo.CreatedName
		item.Title = v.Title
		item.CategoryCode = v.CategoryCode
		item.CategoryText = database.GetLookupText(lookups.LookupType(lookups.LTcategory), v.CategoryCode)
		item.Location = v.Location
		item.SupportCount = v.SupportCount
		item.OppositionCount = v.OppositionCount
		item.UserVote = ""

		if searchSpecs.UserID != "" {
			// errors are swallowed here, the list is more important than the markers
			item.UserVote, _ = m.GetUserVote(KindProtest, v.ID.Hex(), searchSpecs.UserID)
		}

		protestList = append(protestList, item)
	}

	return protestList, nil
}

// GetByID returns one protest
// userID may be empty (anonymous visitor) - members get their own vote attached
func (m ProtestModel) GetByID(protestID string, userID string) (*Protest, error) {

	id := ObjectID(protestID)
	if id.IsZero() {
		return nil, ErrEntityNotFound
	}

	data := Protest{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&data)
	if err != nil {
		return nil, ErrEntityNotFound
	}

	// unreleased entries are visible to their author and admins only
	if !data.Approved {
		if err := m.mayModify(&data, userID); err != nil {
			return nil, ErrEntityNotFound
		}
	}

	data.MetaInfo.CreatedTS = primitive.ObjectID.Timestamp(data.ID)
	data.CategoryText = database.GetLookupText(lookups.LookupType(lookups.LTcategory), data.CategoryCode)

	if userID != "" {
		data.UserVote, _ = m.GetUserVote(KindProtest, protestID, userID)
	}

	if m.TrackVisit != nil {
		m.TrackVisit(KindProtest, protestID, userID)
	}

	return &data, nil
}

// Update modifies the user-editable fields of a protest
// moderation state and counters are never touched here; an outdated RecVer
// reports a write conflict so clients re-read before saving again
func (m ProtestModel) Update(protest *Protest, userID string) error {

	current, err := m.GetByID(protest.ID.Hex(), userID)
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
		{Key: "_id", Value: protest.ID},
		{Key: "metaInfo.recVer", Value: protest.MetaInfo.RecVer}, // optimistic locking
	}

	now := time.Now()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "title", Value: protest.Title},
			{Key: "description", Value: protest.Description},
			{Key: "categoryCD", Value: protest.CategoryCode},
			{Key: "location", Value: protest.Location},
			{Key: "startTS", Value: protest.StartTS},
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
		// either deleted meanwhile or changed by someone else
		return apperror.ErrRecordChanged
	}

	return nil
}

// SetApproval releases or withdraws a protest for voting (admins only)
func (m ProtestModel) SetApproval(protestID string, approved bool, userID string) error {

	credentials, err := m.CredentialsReader(userID)
	if err != nil {
		return ErrInvalidUser
	}
	if credentials.RoleCode != lookups.UserRoleAdmin {
		return apperror.ErrDenied
	}

	filter := bson.D{{Key: "_id", Value: ObjectID(protestID)}}
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

// Delete removes a protest and cascades to its vote records in one
// transaction, so no orphaned votes survive a partial failure
func (m ProtestModel) Delete(protestID string, userID string) error {

	current, err := m.GetByID(protestID, userID)
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

		// cascade - the votes collection is owned by the vote model
		_, err = m.DeleteVotes(sc, KindProtest, current.ID)
		if err != nil {
			return nil, err
		}

		return nil, nil
	})

	return err
}

// mayModify implements the owner-or-admin rule
func (m ProtestModel) mayModify(protest *Protest, userID string) error {

	if protest.MetaInfo.CreatedID.Hex() == userID {
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
