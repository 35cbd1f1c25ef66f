package controllers

import (
	"fmt"
	"net/http"

	"civic-agora/database"

	"github.com/gin-gonic/gin"
)

// ListLookups sends the code/text map to the client
func ListLookups(c *gin.Context) {
	lookups, err := database.GetLookups()
	if err != nil {
		fmt.Println(err)
		c.JSON(http.StatusNoContent, nil)
		return
	}

	c.JSON(http.StatusOK, lookups)
}
