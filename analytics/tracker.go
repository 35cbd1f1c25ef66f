package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"civic-agora/database"
	"civic-agora/helpers"

	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/twinj/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Tracker gathers usage data out-of-band of the request handlers.
// Profile visits are buffered in redis and periodically replicated into the
// profile documents (metaInfo.visits); vote activity goes to influxDB where
// it can be aggregated over time windows.
type Tracker struct {
	redisClient *redis.Client
	VoteAPI     database.InfluxAPI
	collections map[string]*mongo.Collection
	GetUserName func(ID string) (string, error)
}

// VisitCache is the list item in the cache (redis)
type VisitCache struct {
	VisitTS time.Time `json:"visitTS"`
	UserID  string    `json:"userID"`
}

// SetConnections initializes the instance
func (t *Tracker) SetConnections(redisClient *redis.Client, influxClient *influxdb2.Client, mongoCollections map[string]*mongo.Collection) {
	t.redisClient = redisClient
	t.collections = mongoCollections

	// the influx connection is not opened when analytics is disabled
	if influxClient != nil && *influxClient != nil {
		c := *influxClient
		t.VoteAPI.WriteAPI = c.WriteAPIBlocking(os.Getenv("ANALYTICS_ORG"), os.Getenv("ANALYTICS_VOTES_BUCKET"))
		t.VoteAPI.QueryAPI = c.QueryAPI(os.Getenv("ANALYTICS_ORG"))
		t.VoteAPI.DeleteAPI = c.DeleteAPI()
	}
}

// SaveVisit stores event data in the cache
func (t *Tracker) SaveVisit(entityKind string, entityID string, userID string) {

	if os.Getenv("USE_ANALYTICS") != "YES" {
		return
	}

	var ctx = context.Background()

	// include the kind in the key name so replication can map the visit
	// back to its collection
	key := entityKind + "_" + entityID + "_" + uuid.NewV4().String()

	visit := VisitCache{
		VisitTS: time.Now(),
		UserID:  userID,
	}

	b, err := json.Marshal(visit)
	if err != nil {
		fmt.Println(err) // ToDo: Log
		return
	}

	err = t.redisClient.Set(ctx, key, b, 0).Err()
	if err != nil {
		fmt.Println(err) // ToDo: Log
	}
}

// SaveVoteActivity stores a vote event in the analytics store
// fire-and-forget, called by the vote engine after a successful cast
func (t *Tracker) SaveVoteActivity(entityKind string, entityID string, action string, voteType string, userID string) {

	if os.Getenv("USE_ANALYTICS") != "YES" {
		return
	}

	// the risk of high series cardinality is accepted, since entities is what we're interested in
	// https://docs.influxdata.com/influxdb/v2.0/write-data/best-practices/resolve-high-cardinality/
	p := influxdb2.NewPoint(
		"vote",
		map[string]string{"entityId": entityKind + "_" + entityID},
		map[string]interface{}{
			"action":   action,
			"voteType": voteType,
			"userId":   userID,
		},
		time.Now())

	// ToDo: log Error
	_ = t.VoteAPI.WriteAPI.WritePoint(context.Background(), p)
}

// GetVisits counts the visits of a profile
// replicated total (mongo) plus the "hot" data still in the cache
func (t *Tracker) GetVisits(entityKind string, entityID string) (int64, error) {

	if os.Getenv("USE_ANALYTICS") != "YES" {
		return -1, nil
	}

	col, ok := t.collections[entityKind]
	if !ok {
		return 0, nil
	}

	data := struct {
		MetaInfo struct {
			Visits int64 `bson:"visits"`
		} `bson:"metaInfo"`
	}{}

	fields := bson.D{
		{Key: "_id", Value: 0},
		{Key: "metaInfo.visits", Value: 1}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := col.FindOne(ctx, bson.M{"_id": helpers.ObjectID(entityID)},
		options.FindOne().SetProjection(fields)).Decode(&data)
	if err != nil {
		return 0, helpers.WrapError(err, helpers.FuncName())
	}

	cnt := data.MetaInfo.Visits

	// also check for data in the cache that's not yet replicated
	allKeys, err := t.getKeys(entityKind + "_" + entityID + "_*")
	if err != nil {
		fmt.Println(err)
	}
	if allKeys != nil {
		cnt += int64(len(allKeys))
	}

	return cnt, nil
}

// GetVoteActivity counts the vote events of a profile since a given time
// the value is "live" - read from the analytics store (influxDB)
func (t *Tracker) GetVoteActivity(entityKind string, entityID string, startDT time.Time) (int64, error) {

	if os.Getenv("USE_ANALYTICS") != "YES" {
		return -1, nil
	}

	flux := `from(bucket: "%s")
		|> range(start: %s)
		|> filter(fn: (r) => r["_measurement"] == "vote" and r["entityId"] == "%s")
		|> count()
		|> yield(name: "count")`

	flux = fmt.Sprintf(
		flux,
		os.Getenv("ANALYTICS_VOTES_BUCKET"),
		startDT.Format(time.RFC3339),
		entityKind+"_"+entityID)

	result, err := t.VoteAPI.QueryAPI.Query(context.Background(), flux)
	if err != nil {
		return 0, helpers.WrapError(err, helpers.FuncName())
	}

	// single record expected
	var res interface{}
	for result.Next() {
		res = result.Record().Value()
	}

	var cnt int64 = 0
	if res != nil {
		cnt = res.(int64)
	}

	return cnt, nil
}

// Replicate moves the visits from the cache (redis) into the profile
// documents (mongo) - called periodically by a ticker in main
func (t *Tracker) Replicate() {

	var ctx = context.Background()

	allKeys, err := t.getKeys("*")
	if err != nil {
		return // abort in case of an error
	}

	// abort if no data found
	if allKeys == nil {
		return
	}

	// accumulate one $inc per entity - many visits collapse into one update
	// https://stackoverflow.com/questions/58538657/golang-mongodb-bulkwrite-to-update-slice-of-documents
	type visitCount struct {
		kind string
		oid  string
		cnt  int64
	}
	counts := make(map[string]*visitCount)

	var parts []string
	for _, key := range allKeys {
		parts = strings.Split(key, "_")
		if len(parts) != 3 {
			continue // not a visit key
		}
		vc, ok := counts[parts[0]+"_"+parts[1]]
		if !ok {
			counts[parts[0]+"_"+parts[1]] = &visitCount{kind: parts[0], oid: parts[1], cnt: 1}
		} else {
			vc.cnt++
		}
	}

	// create a write model for each collection
	opModels := make(map[string][]mongo.WriteModel)
	for _, v := range counts {
		operation := bson.D{
			{Key: "$inc", Value: bson.D{
				{Key: "metaInfo.visits", Value: v.cnt},
			}},
		}

		opModel := mongo.NewUpdateOneModel()
		opModel.SetFilter(bson.D{{Key: "_id", Value: helpers.ObjectID(v.oid)}}).SetUpdate(operation)

		if _, ok := t.collections[v.kind]; ok {
			opModels[v.kind] = append(opModels[v.kind], opModel)
		} else {
			fmt.Println("ERROR: no collection registered for kind " + v.kind)
		}
	}

	opts := options.BulkWrite().SetOrdered(false)

	var cnt int64 = 0 // total replicated profile's visits

	for k, v := range opModels {
		if v != nil {
			res, err := t.collections[k].BulkWrite(ctx, v, opts)
			if err != nil {
				fmt.Println(helpers.WrapError(err, helpers.FuncName()))
				continue
			}
			cnt += res.MatchedCount
		}
	}

	// ToDo: could be logged
	fmt.Printf("%v: %v profile visit(s) replicated.\n", time.Now().Format(time.RFC3339), cnt)

	// delete processed data in redis
	for _, key := range allKeys {
		_, err := t.redisClient.Del(ctx, key).Result()
		if err != nil {
			fmt.Println(err) // ToDo: Log
			return
		}
	}
}

// internal methods used by multiple functions

// get a list of keys matching a specific name
func (t *Tracker) getKeys(searchMask string) ([]string, error) {

	var ctx = context.Background()
	var cursor uint64
	var err error

	var keys []string // current iteration of cursor
	var allKeys []string

	for {
		keys, cursor, err = t.redisClient.Scan(ctx, cursor, searchMask, 10).Result()
		if err != nil {
			return nil, helpers.WrapError(err, helpers.FuncName())
		}

		allKeys = append(allKeys, keys...)

		if cursor == 0 {
			break
		}
	}
	return allKeys, nil
}
