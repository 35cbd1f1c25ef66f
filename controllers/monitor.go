package controllers

import (
	"net/http"

	"civic-agora/authentication"
	"civic-agora/environment"

	"github.com/gin-gonic/gin"
)

func CountRequests(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, environment.Env.Requests.Count())
}

func DumpRequests(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, environment.Env.Requests.Dump(50))
}

func FlushRequests(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	environment.Env.Requests.Flush()

	c.Status(http.StatusOK)
}

// AuditVotes recounts an entity's vote records against its counters
// http://localhost:3000/monitor/votes?pKind=protest&pId=6055d819671e62579fcc2151
func AuditVotes(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	audit, err := environment.Env.VoteModel.Audit(c.Query("pKind"), c.Query("pId"))
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, audit)
}
