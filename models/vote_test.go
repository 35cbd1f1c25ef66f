package models

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"civic-agora/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryVoteStore implements the VoteStore contract in memory, under one
// mutex. The guard semantics (unique key on insert, previous value on
// update/delete, floor guard on decrements) mirror the mongo implementation
// so the engine's retry logic can be exercised without a database.
type memoryVoteStore struct {
	mu       sync.Mutex
	entities map[string]*EntityCounts
	votes    map[string]*VoteRecord

	// when > 0, Apply reports that many conflicts before succeeding
	conflicts int
	// when set, Apply removes the entity first - simulates a deletion that
	// lands between the engine's fresh read and its atomic write
	dropEntity bool
	// when set, the next Apply fails with this error (one-shot)
	applyErr error
}

func newMemoryVoteStore() *memoryVoteStore {
	return &memoryVoteStore{
		entities: make(map[string]*EntityCounts),
		votes:    make(map[string]*VoteRecord),
	}
}

func entityKey(kind string, id primitive.ObjectID) string {
	return kind + "/" + id.Hex()
}

func recordKey(kind string, entityID, userID primitive.ObjectID) string {
	return kind + "/" + entityID.Hex() + "/" + userID.Hex()
}

func (s *memoryVoteStore) addEntity(kind string, approved bool) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := primitive.NewObjectID()
	s.entities[entityKey(kind, id)] = &EntityCounts{EntityOID: id, Approved: approved}
	return id
}

// seed places a raw record and adjusts the counters, bypassing the engine
// (used to simulate pre-existing data, including legacy values)
func (s *memoryVoteStore) seed(kind string, entityID, userID primitive.ObjectID, storedType string, counted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[recordKey(kind, entityID, userID)] = &VoteRecord{
		ID:         primitive.NewObjectID(),
		EntityKind: kind,
		EntityID:   entityID,
		UserID:     userID,
		VoteType:   storedType,
	}
	if counted {
		e := s.entities[entityKey(kind, entityID)]
		if NormalizeVoteType(storedType) == VoteSupport {
			e.SupportCount++
		} else {
			e.OppositionCount++
		}
	}
}

func (s *memoryVoteStore) GetEntityCounts(ctx context.Context, kind string, entityID primitive.ObjectID) (*EntityCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityKey(kind, entityID)]
	if !ok {
		return nil, apperror.ErrNoData
	}
	c := *e
	return &c, nil
}

func (s *memoryVoteStore) GetVote(ctx context.Context, kind string, entityID, userID primitive.ObjectID) (*VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.votes[recordKey(kind, entityID, userID)]
	if !ok {
		return nil, apperror.ErrNoData
	}
	r := *rec
	return &r, nil
}

func (s *memoryVoteStore) GetUserVotes(ctx context.Context, kind string, userID primitive.ObjectID) ([]UserVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var votes []UserVote
	for _, rec := range s.votes {
		if rec.EntityKind == kind && rec.UserID == userID {
			votes = append(votes, UserVote{EntityID: rec.EntityID, VoteType: rec.VoteType})
		}
	}
	return votes, nil
}

func (s *memoryVoteStore) Apply(ctx context.Context, change *VoteChange) (*EntityCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflicts > 0 {
		s.conflicts--
		return nil, apperror.ErrRecordChanged
	}

	if s.applyErr != nil {
		err := s.applyErr
		s.applyErr = nil
		return nil, err
	}

	if s.dropEntity {
		s.dropEntity = false
		delete(s.entities, entityKey(change.EntityKind, change.EntityID))
	}

	key := recordKey(change.EntityKind, change.EntityID, change.UserID)
	rec, exists := s.votes[key]

	// record operation with the same guards as the database
	switch change.Op {
	case voteOpInsert:
		if exists {
			return nil, apperror.ErrRecordChanged
		}
	case voteOpUpdate, voteOpDelete:
		if !exists || rec.VoteType != change.PrevStored {
			return nil, apperror.ErrRecordChanged
		}
	}

	e, ok := s.entities[entityKey(change.EntityKind, change.EntityID)]
	if !ok {
		return nil, apperror.ErrNoData
	}

	// floor guard - a decrement below zero means prior corruption
	if e.SupportCount+change.SupportDelta < 0 || e.OppositionCount+change.OppositionDelta < 0 {
		return nil, apperror.ErrOutOfSync
	}

	switch change.Op {
	case voteOpInsert:
		s.votes[key] = &VoteRecord{
			ID:         primitive.NewObjectID(),
			EntityKind: change.EntityKind,
			EntityID:   change.EntityID,
			UserID:     change.UserID,
			UserName:   change.UserName,
			VoteType:   change.NewType,
		}
	case voteOpUpdate:
		rec.VoteType = change.NewType
	case voteOpDelete:
		delete(s.votes, key)
	}

	e.SupportCount += change.SupportDelta
	e.OppositionCount += change.OppositionDelta

	c := *e
	return &c, nil
}

func (s *memoryVoteStore) Canonicalize(ctx context.Context, kind string, entityID, userID primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.votes[recordKey(kind, entityID, userID)]
	if ok && rec.VoteType == voteLegacyOpposition {
		rec.VoteType = VoteOpposition
	}
}

func (s *memoryVoteStore) DeleteEntityVotes(ctx context.Context, kind string, entityID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cnt int64
	for k, rec := range s.votes {
		if rec.EntityKind == kind && rec.EntityID == entityID {
			delete(s.votes, k)
			cnt++
		}
	}
	return cnt, nil
}

func (s *memoryVoteStore) CountVotes(ctx context.Context, kind string, entityID primitive.ObjectID) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var support, opposition int64
	for _, rec := range s.votes {
		if rec.EntityKind == kind && rec.EntityID == entityID {
			if NormalizeVoteType(rec.VoteType) == VoteSupport {
				support++
			} else {
				opposition++
			}
		}
	}
	return support, opposition, nil
}

func newTestVoteModel(store *memoryVoteStore) VoteModel {
	return VoteModel{
		Store: store,
		GetUserNameOID: func(userID primitive.ObjectID) (string, error) {
			return "tester", nil
		},
	}
}

func TestNormalizeVoteType(t *testing.T) {
	assert.Equal(t, VoteOpposition, NormalizeVoteType("against"))
	assert.Equal(t, VoteOpposition, NormalizeVoteType(VoteOpposition))
	assert.Equal(t, VoteSupport, NormalizeVoteType(VoteSupport))
}

func TestCastVoteAdd(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()

	res, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteSupport)
	require.NoError(t, err)
	assert.Equal(t, VoteAdded, res.Action)
	assert.Equal(t, VoteSupport, res.VoteType)
	assert.Equal(t, int64(1), res.SupportCount)
	assert.Equal(t, int64(0), res.OppositionCount)
}

func TestCastVoteToggleOff(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()

	_, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteSupport)
	require.NoError(t, err)

	// the same vote again withdraws it
	res, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteSupport)
	require.NoError(t, err)
	assert.Equal(t, VoteRemoved, res.Action)
	assert.Equal(t, int64(0), res.SupportCount)
	assert.Equal(t, int64(0), res.OppositionCount)

	vote, err := model.GetUserVote(KindProtest, entityID.Hex(), userID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "", vote)
}

func TestCastVoteSwitch(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindBoycott, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()

	_, err := model.CastVote(KindBoycott, entityID.Hex(), userID.Hex(), VoteSupport)
	require.NoError(t, err)

	res, err := model.CastVote(KindBoycott, entityID.Hex(), userID.Hex(), VoteOpposition)
	require.NoError(t, err)
	assert.Equal(t, VoteChanged, res.Action)
	assert.Equal(t, int64(0), res.SupportCount)
	assert.Equal(t, int64(1), res.OppositionCount)
}

// records written before the opposition bucket was renamed still carry the
// old value - the transition laws must treat them as opposition votes
func TestCastVoteLegacyToggleOff(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()
	store.seed(KindProtest, entityID, userID, "against", true)

	res, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteOpposition)
	require.NoError(t, err)
	assert.Equal(t, VoteRemoved, res.Action)
	assert.Equal(t, int64(0), res.OppositionCount)
}

func TestCastVoteLegacySwitch(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()
	store.seed(KindProtest, entityID, userID, "against", true)

	res, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteSupport)
	require.NoError(t, err)
	assert.Equal(t, VoteChanged, res.Action)
	assert.Equal(t, int64(1), res.SupportCount)
	assert.Equal(t, int64(0), res.OppositionCount)
}

// two users working on the same entity, step by step
func TestCastVoteSequence(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userA := primitive.NewObjectID()
	userB := primitive.NewObjectID()

	res, err := model.CastVote(KindProtest, entityID.Hex(), userA.Hex(), VoteSupport)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0}, []int64{res.SupportCount, res.OppositionCount})

	res, err = model.CastVote(KindProtest, entityID.Hex(), userB.Hex(), VoteOpposition)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, []int64{res.SupportCount, res.OppositionCount})

	res, err = model.CastVote(KindProtest, entityID.Hex(), userA.Hex(), VoteOpposition)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, []int64{res.SupportCount, res.OppositionCount})

	res, err = model.CastVote(KindProtest, entityID.Hex(), userB.Hex(), VoteOpposition)
	require.NoError(t, err)
	assert.Equal(t, VoteRemoved, res.Action)
	assert.Equal(t, []int64{0, 1}, []int64{res.SupportCount, res.OppositionCount})
}

func TestCastVoteConcurrentUsers(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			userID := primitive.NewObjectID()
			_, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteSupport)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := store.GetEntityCounts(context.Background(), KindProtest, entityID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), counts.SupportCount)

	support, _, err := store.CountVotes(context.Background(), KindProtest, entityID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), support)
}

func TestCastVoteRetriesOnConflict(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	store.conflicts = 1
	model := newTestVoteModel(store)

	res, err := model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), VoteSupport)
	require.NoError(t, err)
	assert.Equal(t, VoteAdded, res.Action)
}

func TestCastVoteRetryBudgetExhausted(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	store.conflicts = castVoteAttempts
	model := newTestVoteModel(store)

	_, err := model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), VoteSupport)
	assert.Equal(t, apperror.ErrRecordChanged, err)
}

func TestCastVoteEntityNotFound(t *testing.T) {
	store := newMemoryVoteStore()
	model := newTestVoteModel(store)

	_, err := model.CastVote(KindProtest, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex(), VoteSupport)
	assert.Equal(t, ErrEntityNotFound, err)

	// an unparseable ID reads as "no such entity", not as a system error
	_, err = model.CastVote(KindProtest, "not-an-id", primitive.NewObjectID().Hex(), VoteSupport)
	assert.Equal(t, ErrEntityNotFound, err)
}

// the entity is deleted between the engine's fresh read and the atomic write -
// the store reports the missing document and the caller gets a not-found
func TestCastVoteEntityDeletedDuringCast(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	store.dropEntity = true
	model := newTestVoteModel(store)

	_, err := model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), VoteSupport)
	assert.Equal(t, ErrEntityNotFound, err)
}

// a store outage surfaces unchanged (no retry, no remapping) so the
// controller can answer with 503
func TestCastVoteStoreUnavailable(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	store.applyErr = apperror.ErrUnavailable
	model := newTestVoteModel(store)

	_, err := model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), VoteSupport)
	assert.Equal(t, apperror.ErrUnavailable, err)
}

func TestCastVoteNotApproved(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, false)
	model := newTestVoteModel(store)

	_, err := model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), VoteSupport)
	assert.Equal(t, ErrNotApproved, err)
}

func TestCastVoteInvalidType(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	_, err := model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), "abstain")
	assert.Equal(t, ErrVoteTypeInvalid, err)

	// the legacy value is accepted on stored records only, never as input
	_, err = model.CastVote(KindProtest, entityID.Hex(), primitive.NewObjectID().Hex(), "against")
	assert.Equal(t, ErrVoteTypeInvalid, err)
}

// a withdrawal that would push a counter below zero signals corruption and
// must fail loudly instead of clamping
func TestCastVoteCounterUnderflow(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()
	// record exists but was never counted
	store.seed(KindProtest, entityID, userID, VoteSupport, false)

	_, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), VoteSupport)
	assert.Equal(t, apperror.ErrOutOfSync, err)

	// nothing was clamped
	counts, err := store.GetEntityCounts(context.Background(), KindProtest, entityID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.SupportCount)
}

func TestGetUserVoteNormalizes(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()
	store.seed(KindProtest, entityID, userID, "against", true)

	vote, err := model.GetUserVote(KindProtest, entityID.Hex(), userID.Hex())
	require.NoError(t, err)
	assert.Equal(t, VoteOpposition, vote)

	// the read rewrote the stored value in place
	rec, err := store.GetVote(context.Background(), KindProtest, entityID, userID)
	require.NoError(t, err)
	assert.Equal(t, VoteOpposition, rec.VoteType)
}

func TestGetUserVotesNormalizes(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	userID := primitive.NewObjectID()
	store.seed(KindProtest, entityID, userID, "against", true)

	votes, err := model.GetUserVotes(KindProtest, userID.Hex())
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, VoteOpposition, votes[0].VoteType)
}

func TestDeleteEntityVotes(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	for i := 0; i < 3; i++ {
		store.seed(KindProtest, entityID, primitive.NewObjectID(), VoteSupport, true)
	}

	cnt, err := model.DeleteEntityVotes(context.Background(), KindProtest, entityID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cnt)
}

func TestAudit(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	store.seed(KindProtest, entityID, primitive.NewObjectID(), VoteSupport, true)
	store.seed(KindProtest, entityID, primitive.NewObjectID(), "against", true)

	audit, err := model.Audit(KindProtest, entityID.Hex())
	require.NoError(t, err)
	assert.True(t, audit.InSync)
	assert.Equal(t, int64(1), audit.SupportRecords)
	assert.Equal(t, int64(1), audit.OppositionRecords)

	// desynchronize: record without counter
	store.seed(KindProtest, entityID, primitive.NewObjectID(), VoteSupport, false)

	audit, err = model.Audit(KindProtest, entityID.Hex())
	require.NoError(t, err)
	assert.False(t, audit.InSync)
}

// every user votes several times in parallel on the same entity - whatever
// the interleaving, counters and records must agree at the end
func TestCastVoteConcurrentSameUser(t *testing.T) {
	store := newMemoryVoteStore()
	entityID := store.addEntity(KindProtest, true)
	model := newTestVoteModel(store)

	const users = 10
	const casts = 4

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		userID := primitive.NewObjectID()
		for i := 0; i < casts; i++ {
			wg.Add(1)
			voteType := VoteSupport
			if i%2 == 1 {
				voteType = VoteOpposition
			}
			go func(vt string) {
				defer wg.Done()
				_, err := model.CastVote(KindProtest, entityID.Hex(), userID.Hex(), vt)
				// a lost retry budget is acceptable here, corruption is not
				if err != nil && err != apperror.ErrRecordChanged {
					t.Errorf("unexpected error: %v", err)
				}
			}(voteType)
		}
	}
	wg.Wait()

	counts, err := store.GetEntityCounts(context.Background(), KindProtest, entityID)
	require.NoError(t, err)
	support, opposition, err := store.CountVotes(context.Background(), KindProtest, entityID)
	require.NoError(t, err)

	assert.Equal(t, support, counts.SupportCount,
		fmt.Sprintf("support counter diverged: %d vs %d records", counts.SupportCount, support))
	assert.Equal(t, opposition, counts.OppositionCount,
		fmt.Sprintf("opposition counter diverged: %d vs %d records", counts.OppositionCount, opposition))
	assert.True(t, counts.SupportCount >= 0 && counts.OppositionCount >= 0)
}
