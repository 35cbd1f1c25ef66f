package environment

import (
	"os"

	"civic-agora/analytics"
	"civic-agora/client"
	"civic-agora/database"
	"civic-agora/models"

	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"go.mongodb.org/mongo-driver/mongo"
)

// Environment is used for dependency-injection (package de-coupling)
type Environment struct {
	Requests     *client.Registry
	Tracker      *analytics.Tracker
	UserModel    models.UserModel
	VoteModel    models.VoteModel
	ProtestModel models.ProtestModel
	BoycottModel models.BoycottModel
	Moderation   models.Moderation
}

// newEnv operates as the constructor to initialize the collection references (private)
func newEnv(mongoClient *mongo.Client, redisClient *redis.Client, influxClient *influxdb2.Client) *Environment {
	env := &Environment{}

	db := mongoClient.Database(os.Getenv("DB_NAME"))

	protests := db.Collection("protests") // ToDo: Const
	boycotts := db.Collection("boycotts")
	votes := db.Collection("votes")
	users := db.Collection("users")

	// the registry of votable kinds - everything generic hangs off this map
	entities := map[string]*mongo.Collection{
		models.KindProtest: protests,
		models.KindBoycott: boycotts,
	}

	// prepare analytics gathering (profile visits & vote activity)
	// always create the object so no further checking is needed in the models
	env.Tracker = new(analytics.Tracker)
	env.Tracker.SetConnections(redisClient, influxClient, entities)

	env.UserModel.Client = mongoClient
	env.UserModel.Collection = users

	// inject user model function to analytics tracker after its initialization
	env.Tracker.GetUserName = env.UserModel.GetUserName

	// the vote engine works against the store interface
	env.VoteModel.Store = &models.MongoVoteStore{
		Client:   mongoClient,
		Votes:    votes,
		Entities: entities,
	}
	env.VoteModel.GetUserNameOID = env.UserModel.GetUserNameOID
	env.VoteModel.TrackVote = env.Tracker.SaveVoteActivity

	// inject functions of the user and vote models into the entity models
	env.ProtestModel.Client = mongoClient
	env.ProtestModel.Collection = protests
	env.ProtestModel.GetUserName = env.UserModel.GetUserName
	env.ProtestModel.CredentialsReader = env.UserModel.GetCredentials
	env.ProtestModel.GetUserVote = env.VoteModel.GetUserVote
	env.ProtestModel.DeleteVotes = env.VoteModel.DeleteEntityVotes
	env.ProtestModel.TrackVisit = env.Tracker.SaveVisit

	env.BoycottModel.Client = mongoClient
	env.BoycottModel.Collection = boycotts
	env.BoycottModel.GetUserName = env.UserModel.GetUserName
	env.BoycottModel.CredentialsReader = env.UserModel.GetCredentials
	env.BoycottModel.GetUserVote = env.VoteModel.GetUserVote
	env.BoycottModel.DeleteVotes = env.VoteModel.DeleteEntityVotes
	env.BoycottModel.TrackVisit = env.Tracker.SaveVisit

	env.Moderation.SetConnections(entities)

	env.Requests = new(client.Registry)
	env.Requests.Initialize()

	return env
}

// Env is the singleton registry
var Env *Environment

// InitializeModels injects the database connections to the models
// (do not confuse with package init)
func InitializeModels() {
	Env = newEnv(database.GetConnection(), database.GetRedisConnection(), database.GetInfluxConnection())
}
