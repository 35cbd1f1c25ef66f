package controllers

import (
	"net/http"

	"civic-agora/apperror"
	"civic-agora/authentication"
	"civic-agora/environment"
	"civic-agora/models"

	"github.com/gin-gonic/gin"
)

// AddBoycott creates a new boycott
func AddBoycott(c *gin.Context) {

	var (
		err      error
		data     models.Boycott
		apiError ErrorResponse
	)

	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	// use "shouldBind" not all fields are required in this context
	if err = c.ShouldBindJSON(&data); err != nil {
		apiError.Code = InvalidJSON
		apiError.Message = apiError.String(apiError.Code)
		c.JSON(http.StatusUnprocessableEntity, apiError)
		return
	}

	// validate request
	boycott, err := environment.Env.BoycottModel.Validate(data)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	id, err := environment.Env.BoycottModel.Create(boycott, userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, Created{id})
}

// ListBoycotts returns approved boycotts
// service is public, members additionally receive their own vote per item
func ListBoycotts(c *gin.Context) {

	// error maybe ignored here
	userID, _ := authentication.Authenticate(c.Request)

	boycotts, err := environment.Env.BoycottModel.List(userID)
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

	c.JSON(http.StatusOK, boycotts)
}

// GetBoycott returns the specified boycott
func GetBoycott(c *gin.Context) {

	// no error checking because it's optional (approved boycotts are public)
	userID, _ := authentication.Authenticate(c.Request)

	data, err := environment.Env.BoycottModel.GetByID(c.Param("id"), userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, data)
}

// UpdateBoycott modifies an existing boycott (owner or admin)
func UpdateBoycott(c *gin.Context) {

	var (
		err      error
		data     models.Boycott
		apiError ErrorResponse
	)

	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	if err = c.ShouldBindJSON(&data); err != nil {
		apiError.Code = InvalidJSON
		apiError.Message = apiError.String(apiError.Code)
		c.JSON(http.StatusUnprocessableEntity, apiError)
		return
	}

	data.ID = models.ObjectID(c.Param("id"))

	boycott, err := environment.Env.BoycottModel.Validate(data)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	err = environment.Env.BoycottModel.Update(boycott, userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.Status(http.StatusOK)
}

// DeleteBoycott removes a boycott including its votes (owner or admin)
func DeleteBoycott(c *gin.Context) {

	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	err = environment.Env.BoycottModel.Delete(c.Param("id"), userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.Status(http.StatusOK)
}
