package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicate(t *testing.T) {
	var r Registry
	r.Initialize()

	// first delivery passes
	assert.False(t, r.Duplicate("user-1", "req-1"))
	// network-level retry of the same click is caught
	assert.True(t, r.Duplicate("user-1", "req-1"))
	// a new click passes again
	assert.False(t, r.Duplicate("user-1", "req-2"))
	// and re-sending the earlier ID is a fresh request by then
	assert.False(t, r.Duplicate("user-1", "req-1"))

	// clients are independent
	assert.False(t, r.Duplicate("user-2", "req-1"))

	assert.Equal(t, 2, r.Count())
}

func TestForgetReleasesFailedRequest(t *testing.T) {
	var r Registry
	r.Initialize()

	// first delivery passes and is recorded
	assert.False(t, r.Duplicate("user-1", "req-1"))

	// the call behind req-1 failed, nothing was processed -
	// the client's retry of the same click must pass again
	r.Forget("user-1", "req-1")
	assert.False(t, r.Duplicate("user-1", "req-1"))

	// once it went through, a repeated delivery is still caught
	assert.True(t, r.Duplicate("user-1", "req-1"))

	// forgetting a non-matching ID releases nothing
	r.Forget("user-1", "req-other")
	assert.True(t, r.Duplicate("user-1", "req-1"))
}

func TestDuplicateWithoutRequestID(t *testing.T) {
	var r Registry
	r.Initialize()

	// clients not sending an ID never get blocked
	assert.False(t, r.Duplicate("user-1", ""))
	assert.False(t, r.Duplicate("user-1", ""))
}
