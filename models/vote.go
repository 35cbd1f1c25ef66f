package models

import (
	"context"
	"log"
	"time"

	"civic-agora/apperror"
	"civic-agora/helpers"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// votable entity kinds
// adding a kind only requires a collection in the store registry, the engine
// itself is generic
const (
	KindProtest = "protest"
	KindBoycott = "boycott"
)

// vote types as stored on the records
const (
	VoteSupport    = "support"
	VoteOpposition = "opposition"
)

// voteLegacyOpposition is the historic name of the opposition bucket.
// Records written before the rename still carry it; they are translated on
// read (NormalizeVoteType), never migrated in bulk.
const voteLegacyOpposition = "against"

// actions reported back to the caller; together with the vote type they are
// the complete contract clients use to update their optimistic local view
const (
	VoteAdded   = "added"
	VoteChanged = "changed"
	VoteRemoved = "removed"
)

// castVoteAttempts bounds the optimistic retry loop; when exhausted the
// caller receives apperror.ErrRecordChanged and may retry at its discretion
const castVoteAttempts = 3

// VoteRecord is the single source of truth for one user's current vote on
// one entity - at most one live record per (entityKind, entityID, userID),
// enforced by a unique index
type VoteRecord struct {
	ID         primitive.ObjectID `json:"-" bson:"_id"`
	EntityKind string             `json:"entityKind" bson:"entityKind"`
	EntityID   primitive.ObjectID `json:"entityID" bson:"entityID"`
	UserID     primitive.ObjectID `json:"userID" bson:"userID"`
	UserName   string             `json:"userName" bson:"userName"` // denormalized for lists
	VoteType   string             `json:"voteType" bson:"voteType"`
	VoteTS     time.Time          `json:"voteTS" bson:"voteTS"`
	ModifiedTS time.Time          `json:"modifiedTS" bson:"modifiedTS"` // set on every mutation (auditability)
}

// VoteResult is sent to the client after a cast. The fresh counters are
// included so clients re-sync from the server outcome instead of compounding
// their own optimistic deltas.
type VoteResult struct {
	Action          string `json:"action"`
	VoteType        string `json:"voteType"`
	SupportCount    int64  `json:"supportCount"`
	OppositionCount int64  `json:"oppositionCount"`
}

// UserVote represents a user's vote on one entity
// usually used as a slice type for lists (eg. the profile page)
type UserVote struct {
	EntityID primitive.ObjectID `json:"entityID" bson:"entityID"`
	VoteType string             `json:"voteType" bson:"voteType"`
}

// VoteAudit compares the denormalized counters of an entity with a recount
// of its vote records (monitor endpoint)
type VoteAudit struct {
	EntityKind        string `json:"entityKind"`
	EntityID          string `json:"entityID"`
	SupportCount      int64  `json:"supportCount"`
	OppositionCount   int64  `json:"oppositionCount"`
	SupportRecords    int64  `json:"supportRecords"`
	OppositionRecords int64  `json:"oppositionRecords"`
	InSync            bool   `json:"inSync"`
}

// NormalizeVoteType maps the deprecated stored value to its canonical name.
// Must be applied wherever a stored voteType is compared or keyed.
func NormalizeVoteType(stored string) string {
	if stored == voteLegacyOpposition {
		return VoteOpposition
	}
	return stored
}

// VoteModel provides the logics to the data type
type VoteModel struct {
	Store VoteStore
	// some information comes from the user model and is referenced here,
	// so the controller doesn't have to resolve it
	GetUserNameOID func(userID primitive.ObjectID) (string, error)
	// fire-and-forget activity logging (analytics), may be nil
	TrackVote func(entityKind string, entityID string, action string, voteType string, userID string)
}

// CastVote applies a user's voting intent to an entity:
// no current vote           -> add (counter +1)
// same vote again           -> remove (toggle-off, counter -1)
// different vote            -> change (one counter -1, the other +1)
// Record and counter mutations are committed as one atomic unit by the
// store; on a lost race the transition is recomputed from a fresh read, so
// concurrent calls for the same key serialize instead of double-counting.
func (v VoteModel) CastVote(entityKind string, entityID string, userID string, voteType string) (*VoteResult, error) {

	if voteType != VoteSupport && voteType != VoteOpposition {
		return nil, ErrVoteTypeInvalid
	}

	entityOID := ObjectID(entityID)
	if entityOID.IsZero() {
		return nil, ErrEntityNotFound
	}

	// the engine does not check credentials, only presence
	userOID := ObjectID(userID)
	userName, err := v.GetUserNameOID(userOID)
	if err != nil {
		return nil, ErrInvalidUser
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *VoteResult

	for attempt := 0; attempt < castVoteAttempts; attempt++ {

		counts, err := v.Store.GetEntityCounts(ctx, entityKind, entityOID)
		if err != nil {
			if err == apperror.ErrNoData {
				return nil, ErrEntityNotFound
			}
			return nil, err
		}
		if !counts.Approved {
			return nil, ErrNotApproved
		}

		rec, err := v.Store.GetVote(ctx, entityKind, entityOID, userOID)
		if err != nil && err != apperror.ErrNoData {
			return nil, err
		}

		change := &VoteChange{
			EntityKind: entityKind,
			EntityID:   entityOID,
			UserID:     userOID,
			UserName:   userName,
		}

		var action string
		switch {
		case rec == nil:
			action = VoteAdded
			change.Op = voteOpInsert
			change.NewType = voteType
			change.addDelta(voteType, 1)

		case NormalizeVoteType(rec.VoteType) == voteType:
			// toggle-off: the same vote again withdraws it
			action = VoteRemoved
			change.Op = voteOpDelete
			change.PrevStored = rec.VoteType // raw value, guards the delete
			change.addDelta(voteType, -1)

		default:
			action = VoteChanged
			change.Op = voteOpUpdate
			change.PrevStored = rec.VoteType
			change.NewType = voteType
			change.addDelta(NormalizeVoteType(rec.VoteType), -1)
			change.addDelta(voteType, 1)
		}

		counts, err = v.Store.Apply(ctx, change)
		if err == apperror.ErrRecordChanged {
			// lost a race on this key - recompute from a fresh read
			continue
		}
		if err != nil {
			if err == apperror.ErrNoData {
				// entity deleted while voting
				return nil, ErrEntityNotFound
			}
			if err == apperror.ErrOutOfSync {
				// prior corruption, never clamped silently
				log.Printf("%s: %v (kind=%s id=%s)", helpers.FuncName(), err, entityKind, entityID)
			}
			return nil, err
		}

		result = &VoteResult{
			Action:          action,
			VoteType:        voteType,
			SupportCount:    counts.SupportCount,
			OppositionCount: counts.OppositionCount,
		}
		break
	}

	if result == nil {
		// retry budget exhausted
		return nil, apperror.ErrRecordChanged
	}

	if v.TrackVote != nil {
		v.TrackVote(entityKind, entityID, result.Action, result.VoteType, userID)
	}

	return result, nil
}

// GetUserVote returns the user's current (normalized) vote on an entity,
// or an empty string if the user didn't vote.
func (v VoteModel) GetUserVote(entityKind string, entityID string, userID string) (string, error) {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := v.Store.GetVote(ctx, entityKind, ObjectID(entityID), ObjectID(userID))
	if err != nil {
		// it's NOT an error if the user didn't vote
		if err == apperror.ErrNoData {
			return "", nil
		}
		return "", err
	}

	if rec.VoteType == voteLegacyOpposition {
		// best-effort rewrite so future reads skip the translation;
		// purely an optimization, safe to fail
		v.Store.Canonicalize(ctx, entityKind, rec.EntityID, rec.UserID)
	}

	return NormalizeVoteType(rec.VoteType), nil
}

// GetUserVotes returns the vote actions of a user to entities of a specific
// kind - usually used for items displayed in lists
func (v VoteModel) GetUserVotes(entityKind string, userID string) ([]UserVote, error) {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	votes, err := v.Store.GetUserVotes(ctx, entityKind, ObjectID(userID))
	if err != nil {
		return nil, err
	}

	// check for empty result set (no error raised by find)
	if votes == nil {
		return nil, apperror.ErrNoData
	}

	for i := range votes {
		votes[i].VoteType = NormalizeVoteType(votes[i].VoteType)
	}

	return votes, nil
}

// DeleteEntityVotes removes all vote records of an entity. Called by the
// entity models when a protest/boycott is deleted (cascade) - the ctx may be
// a session context so the deletion joins the caller's transaction.
func (v VoteModel) DeleteEntityVotes(ctx context.Context, entityKind string, entityID primitive.ObjectID) (int64, error) {
	return v.Store.DeleteEntityVotes(ctx, entityKind, entityID)
}

// Audit recounts an entity's vote records and compares them with the
// denormalized counters. A mismatch means the ledger desynchronized at some
// point in the past; it is reported, never repaired here.
func (v VoteModel) Audit(entityKind string, entityID string) (*VoteAudit, error) {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entityOID := ObjectID(entityID)

	counts, err := v.Store.GetEntityCounts(ctx, entityKind, entityOID)
	if err != nil {
		if err == apperror.ErrNoData {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}

	support, opposition, err := v.Store.CountVotes(ctx, entityKind, entityOID)
	if err != nil {
		return nil, err
	}

	audit := &VoteAudit{
		EntityKind:        entityKind,
		EntityID:          entityID,
		SupportCount:      counts.SupportCount,
		OppositionCount:   counts.OppositionCount,
		SupportRecords:    support,
		OppositionRecords: opposition,
		InSync:            counts.SupportCount == support && counts.OppositionCount == opposition,
	}

	if !audit.InSync {
		log.Printf("%s: ledger out of sync (kind=%s id=%s counters=%d/%d records=%d/%d)",
			helpers.FuncName(), entityKind, entityID,
			audit.SupportCount, audit.OppositionCount, audit.SupportRecords, audit.OppositionRecords)
	}

	return audit, nil
}

// addDelta accumulates a counter delta on the normalized bucket
func (c *VoteChange) addDelta(voteType string, d int64) {
	if voteType == VoteSupport {
		c.SupportDelta += d
	} else {
		c.OppositionDelta += d
	}
}
