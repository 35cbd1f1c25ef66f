package controllers

import (
	"net/http"
	"time"

	"civic-agora/authentication"
	"civic-agora/environment"

	"github.com/gin-gonic/gin"
)

// GetVisits returns the visit count of a profile
// http://localhost:3000/stats/visits?pKind=protest&pId=6055d819671e62579fcc2151
func GetVisits(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	cnt, err := environment.Env.Tracker.GetVisits(c.Query("pKind"), c.Query("pId"))
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	// wrap response into an object
	res := struct {
		Visits int64 `json:"visits"`
	}{cnt}

	c.JSON(http.StatusOK, res)
}

// GetVoteActivity returns the vote events of a profile within the last 30 days
// http://localhost:3000/stats/votes?pKind=protest&pId=6055d819671e62579fcc2151
func GetVoteActivity(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	startDT := time.Now().AddDate(0, -1, 0)

	cnt, err := environment.Env.Tracker.GetVoteActivity(c.Query("pKind"), c.Query("pId"), startDT)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	// wrap response into an object
	res := struct {
		Votes int64 `json:"votes"`
	}{cnt}

	c.JSON(http.StatusOK, res)
}
