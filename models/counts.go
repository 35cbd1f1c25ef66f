package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntityCounts is an internal type, not sent to clients.
// It carries the denormalized ledger fields of a votable parent (Protest,
// Boycott) between the store and the vote engine. The invariant is that at
// any quiescent point the two counters equal the number of vote records of
// the respective type referencing the entity.
type EntityCounts struct {
	EntityOID       primitive.ObjectID `bson:"_id"`
	Approved        bool               `bson:"approved"`
	SupportCount    int64              `bson:"supportCount"`
	OppositionCount int64              `bson:"oppositionCount"`
}
