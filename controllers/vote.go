package controllers

import (
	"net/http"

	"civic-agora/apperror"
	"civic-agora/authentication"
	"civic-agora/environment"

	"github.com/gin-gonic/gin"
)

// CastVote applies a user's voting intent to an entity and returns the
// outcome (action taken plus the fresh counters). Casting the same vote
// twice withdraws it, casting the other vote switches it - so this endpoint
// is NOT idempotent and repeated deliveries of the same click are filtered
// via the X-Request-Id header before the engine sees them.
func CastVote(c *gin.Context) {

	var apiError ErrorResponse

	// for enhanced security, read user from token
	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	// anonymous struct used to receive input (POST BODY)
	data := struct {
		EntityKind string `json:"entityKind" binding:"required"`
		EntityID   string `json:"entityID" binding:"required"`
		VoteType   string `json:"voteType" binding:"required"`
	}{}

	// use 'shouldBind' so we can send customized messages
	if err = c.ShouldBindJSON(&data); err != nil {
		apiError.Code = InvalidJSON
		apiError.Message = apiError.String(apiError.Code)
		c.JSON(http.StatusUnprocessableEntity, apiError)
		return
	}

	// drop network-level retries of the same logical click
	requestID := c.GetHeader("X-Request-Id")
	if environment.Env.Requests.Duplicate(userID, requestID) {
		apiError.Code = DuplicateRequest
		apiError.Message = apiError.String(apiError.Code)
		c.JSON(http.StatusConflict, apiError)
		return
	}

	result, err := environment.Env.VoteModel.CastVote(data.EntityKind, data.EntityID, userID, data.VoteType)
	if err != nil {
		// nothing was processed - release the ID so the client may retry
		environment.Env.Requests.Forget(userID, requestID)
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetUserVotes returns the votes of a user to entities of a given kind
// http://localhost:3000/user/votes?pKind=protest
func GetUserVotes(c *gin.Context) {

	var kind = c.Query("pKind")

	// always read userID from token (param is ignored)
	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	votes, err := environment.Env.VoteModel.GetUserVotes(kind, userID)
	if err != nil {
		// nothing found (not an error to the client)
		if err == apperror.ErrNoData {
			c.Status(http.StatusNoContent)
			return
		}
		// technical errors
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, votes)
}
