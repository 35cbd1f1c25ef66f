package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"civic-agora/authentication"
	"civic-agora/controllers"
	"civic-agora/database"
	"civic-agora/environment"
	"civic-agora/middleware"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	router = gin.Default()
)

// called BEFORE main - order of package inits is undefined though!
func init() {
	// load config
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}
}

func handleRequests() {
	router.Use(middleware.CORSMiddleware())

	router.GET("/lookups", controllers.ListLookups)

	// auth-related
	router.POST("/login", controllers.Login)
	router.POST("/logout", authentication.TokenAuthMiddleware(), controllers.Logout)
	router.POST("/refresh", controllers.Refresh) // don't check if the AT is still valid (no middleware)
	router.POST("/register", controllers.Register)

	router.POST("/user/exists", controllers.UserExists)
	router.POST("/email/exists", controllers.EMailExists)

	// user-mgmt
	router.GET("/users/:id", authentication.TokenAuthMiddleware(), controllers.GetUser)
	router.POST("/user/changePass", authentication.TokenAuthMiddleware(), controllers.ChangePassword)
	router.POST("/user/verifyPass", authentication.TokenAuthMiddleware(), controllers.VerifyPassword)

	// voting
	// GET has no BODY (Go/Gin & Postman support it, Angular doesn't) - hence query parameters
	router.POST("/vote", authentication.TokenAuthMiddleware(), controllers.CastVote)
	router.GET("/user/votes", authentication.TokenAuthMiddleware(), controllers.GetUserVotes)

	// protests
	router.GET("/protests", controllers.ListProtests)
	router.GET("/protests/:id", controllers.GetProtest)
	router.POST("/protests", authentication.TokenAuthMiddleware(), controllers.AddProtest)
	router.PUT("/protests/:id", authentication.TokenAuthMiddleware(), controllers.UpdateProtest)
	router.DELETE("/protests/:id", authentication.TokenAuthMiddleware(), controllers.DeleteProtest)

	// boycotts
	router.GET("/boycotts", controllers.ListBoycotts)
	router.GET("/boycotts/:id", controllers.GetBoycott)
	router.POST("/boycotts", authentication.TokenAuthMiddleware(), controllers.AddBoycott)
	router.PUT("/boycotts/:id", authentication.TokenAuthMiddleware(), controllers.UpdateBoycott)
	router.DELETE("/boycotts/:id", authentication.TokenAuthMiddleware(), controllers.DeleteBoycott)

	// moderation
	router.GET("/moderation/review", authentication.TokenAuthMiddleware(), controllers.GetReviewItem)
	router.POST("/moderation/approval", authentication.TokenAuthMiddleware(), controllers.SetApproval)

	// stats
	router.GET("/stats/visits", authentication.TokenAuthMiddleware(), controllers.GetVisits)
	router.GET("/stats/votes", authentication.TokenAuthMiddleware(), controllers.GetVoteActivity)

	// monitoring
	router.GET("/monitor/requests/count", authentication.TokenAuthMiddleware(), controllers.CountRequests)
	router.GET("/monitor/requests/dump", authentication.TokenAuthMiddleware(), controllers.DumpRequests)
	router.POST("/monitor/requests/flush", authentication.TokenAuthMiddleware(), controllers.FlushRequests)
	router.GET("/monitor/votes", authentication.TokenAuthMiddleware(), controllers.AuditVotes)

	switch os.Getenv("APP_ENV") {
	case "DEV":
		router.Run(":" + os.Getenv("API_PORT"))
	case "PRD":
		router.RunTLS(":"+os.Getenv("API_PORT"), os.Getenv("APP_CERTFILE"), os.Getenv("APP_KEYFILE"))
	default:
		panic(fmt.Errorf("APP_ENV must be set"))
	}
}

func main() {
	// connect to main database here (mongoDB)
	err := database.OpenConnection()
	if err != nil {
		log.Fatal(err)
	}
	defer database.CloseConnection()

	// connect to JWT store (redis)
	err = authentication.OpenConnection()
	if err != nil {
		log.Fatal(err)
	}
	defer authentication.CloseConnection()

	if os.Getenv("USE_ANALYTICS") == "YES" {
		// connect to visit cache (redis)
		err = database.OpenRedisConnection()
		if err != nil {
			log.Fatal(err)
		}
		defer database.CloseRedisConnection()

		// connect to vote activity store (influxDB)
		err = database.OpenInfluxConnection()
		if err != nil {
			log.Fatal(err)
		}
		defer database.CloseInfluxConnection()
	}

	// initialize the models
	environment.InitializeModels()

	// periodic housekeeping (visit replication, request registry)
	ticker := time.NewTicker(15 * time.Minute)
	go func() {
		for range ticker.C {
			if os.Getenv("USE_ANALYTICS") == "YES" {
				environment.Env.Tracker.Replicate()
			}
			environment.Env.Requests.Flush()
		}
	}()

	fmt.Println("Civic-Agora running...")
	handleRequests()
}
