package client

import (
	"sync"
	"time"
)

// The vote endpoint is deliberately NOT idempotent (casting the same vote
// twice withdraws it), so a network-level retry of one logical click must be
// caught before it reaches the engine. Clients send an X-Request-Id per
// click; repeats of the same (client, request) pair within the window are
// dropped here.

// https://blog.golang.org/maps
// mediate access to the requests-map using mutex
// this is needed because the map is maintained by a GO-routine
var registry = struct {
	sync.RWMutex
	requests map[string]request // key is client IP or token UUID
}{}

type request struct {
	RequestID string
	Accessed  time.Time
}

type Registry struct {
}

func (r Registry) Initialize() {
	registry.requests = make(map[string]request)
}

// Duplicate reports whether the same client already submitted this request ID
// and records the pair when it is new. Check and record happen under one lock
// so two deliveries of the same click cannot both pass.
func (r Registry) Duplicate(client string, requestID string) bool {

	if requestID == "" {
		// client does not participate in dedup - let it through
		return false
	}

	registry.Lock()
	dup := registry.requests[client].RequestID == requestID
	if !dup {
		registry.requests[client] = request{
			RequestID: requestID,
			Accessed:  time.Now(),
		}
	}
	registry.Unlock()

	return dup
}

// Forget releases a recorded request ID so the client may send it again.
// Called when the call behind the request failed - nothing was processed,
// so rejecting the client's retry as a duplicate would lose the click.
func (r Registry) Forget(client string, requestID string) {

	if requestID == "" {
		return
	}

	registry.Lock()
	if registry.requests[client].RequestID == requestID {
		delete(registry.requests, client)
	}
	registry.Unlock()
}

// Flush removes requests from the registry which are older than 15 minutes
// usually called by a GO-routine that runs in a ticker
func (r Registry) Flush() {

	registry.Lock()
	now := time.Now()
	if len(registry.requests) > 5000 {
		// it's safe to just delete expired keys, since iterations over maps are not ordered
		for key, value := range registry.requests {
			if now.Sub(value.Accessed).Minutes() > 15 {
				delete(registry.requests, key)
			}
		}
	}
	registry.Unlock()
}

// Count returns how many different clients are currently active
func (r Registry) Count() int {
	registry.RLock()
	cnt := len(registry.requests)
	registry.RUnlock()
	return cnt
}

// Dump returns the last request ID and timestamp for each client
func (r Registry) Dump(max int) []request {

	var res []request
	var req request

	registry.RLock()
	i := 0
	for _, v := range registry.requests {
		if i > max {
			break
		}

		req.RequestID = v.RequestID
		req.Accessed = v.Accessed

		res = append(res, req)
		i++
	}
	registry.RUnlock()

	return res
}
