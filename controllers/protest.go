package controllers

import (
	"net/http"

	"civic-agora/apperror"
	"civic-agora/authentication"
	"civic-agora/environment"
	"civic-agora/models"

	"github.com/gin-gonic/gin"
)

// AddProtest creates a new protest
func AddProtest(c *gin.Context) {

	var (
		err      error
		data     models.Protest
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
	protest, err := environment.Env.ProtestModel.Validate(data)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	id, err := environment.Env.ProtestModel.Create(protest, userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, Created{id})
}

// ListProtests returns approved protests
// format => http://localhost:3000/protests?category=environment&search=harbour
// service is public, members additionally receive their own vote per item
func ListProtests(c *gin.Context) {

	// error maybe ignored here
	userID, _ := authentication.Authenticate(c.Request)

	search := new(models.ProtestSearch)
	search.UserID = userID
	search.CategoryText = c.Query("category")
	search.SearchTerm = c.Query("search")

	protests, err := environment.Env.ProtestModel.Search(search)
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

	c.JSON(http.StatusOK, protests)
}

// GetProtest returns the specified protest
func GetProtest(c *gin.Context) {

	// no error checking because it's optional (approved protests are public)
	userID, _ := authentication.Authenticate(c.Request)

	data, err := environment.Env.ProtestModel.GetByID(c.Param("id"), userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.JSON(http.StatusOK, data)
}

// UpdateProtest modifies an existing protest (owner or admin)
func UpdateProtest(c *gin.Context) {

	var (
		err      error
		data     models.Protest
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

	protest, err := environment.Env.ProtestModel.Validate(data)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	err = environment.Env.ProtestModel.Update(protest, userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.Status(http.StatusOK)
}

// DeleteProtest removes a protest including its votes (owner or admin)
func DeleteProtest(c *gin.Context) {

	userID, err := authentication.Authenticate(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	err = environment.Env.ProtestModel.Delete(c.Param("id"), userID)
	if err != nil {
		status, apiError := HandleError(err)
		c.JSON(status, apiError)
		return
	}

	c.Status(http.StatusOK)
}
