package controllers

import (
	"net/http"

	"civic-agora/apperror"
	"civic-agora/authentication"
	"civic-agora/environment"
	"civic-agora/models"

	"github.com/gin-gonic/gin"
)

// GetReviewItem sends a random unreleased entry to the moderation UI
func GetReviewItem(c *gin.Context) {

	_, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	item, err := environment.Env.Moderation.GetReviewItem()
	if err != nil {
		// queue is empty (not an error to the client)
		if err == apperror.ErrNoData {
			c.Status(http.StatusNoContent)
			return
		}
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, item)
}

// SetApproval releases or withdraws an entry for voting (admins only,
// checked by the models)
func SetApproval(c *gin.Context) {

	var apiError ErrorResponse

	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	// anonymous struct used to receive input (POST BODY)
	data := struct {
		EntityKind string `json:"entityKind" binding:"required"`
		EntityID   string `json:"entityID" binding:"required"`
		Approved   *bool  `json:"approved" binding:"required"` // pointer so "false" passes the binding
	}{}

	// use 'shouldBind' so we can send customized messages
	if err = c.ShouldBindJSON(&data); err != nil {
		apiError.Code = InvalidJSON
		apiError.Message = apiError.String(apiError.Code)
		c.JSON(http.StatusUnprocessableEntity, apiError)
		return
	}

	switch data.EntityKind {
	case models.KindProtest:
		err = environment.Env.ProtestModel.SetApproval(data.EntityID, *data.Approved, userID)
	case models.KindBoycott:
		err = environment.Env.BoycottModel.SetApproval(data.EntityID, *data.Approved, userID)
	default:
		err = models.ErrEntityKindInvalid
	}
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.Status(http.StatusOK)
}
