package routes

import (
	"net/http"

	"quizdeck/handlers"
	"quizdeck/middleware"
	"quizdeck/services"

	"github.com/gin-gonic/gin"
)

func Setup(router *gin.Engine,
	auth *services.AuthService,
	authHandler *handlers.AuthHandler,
	quizHandler *handlers.QuizHandler,
	sessionHandler *handlers.SessionHandler,
	allowedOrigin string,
) {
	router.Use(middleware.CORS(allowedOrigin))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/join", sessionHandler.ResolveJoin)

	api := router.Group("/api")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		// Student-facing endpoints, no auth.
		api.POST("/sessions/join", sessionHandler.JoinSession)
		api.GET("/sessions/code/:code", sessionHandler.GetSessionByCode)
		api.POST("/sessions/:id/responses", sessionHandler.SubmitResponse)

		authed := api.Group("")
		authed.Use(middleware.AuthRequired(auth))
		{
			authed.GET("/auth/profile", authHandler.Profile)

			authed.POST("/quizzes", quizHandler.CreateQuiz)
			authed.GET("/quizzes", quizHandler.GetQuizzes)
			authed.GET("/quizzes/:id", quizHandler.GetQuiz)
			authed.PUT("/quizzes/:id", quizHandler.UpdateQuiz)
			authed.DELETE("/quizzes/:id", quizHandler.DeleteQuiz)

			authed.POST("/sessions", sessionHandler.CreateSession)
			authed.GET("/sessions", sessionHandler.GetSessions)
			authed.GET("/sessions/:id", sessionHandler.GetSession)
			authed.POST("/sessions/:id/start", sessionHandler.StartSession)
			authed.POST("/sessions/:id/pause", sessionHandler.PauseSession)
			authed.POST("/sessions/:id/resume", sessionHandler.ResumeSession)
			authed.POST("/sessions/:id/next", sessionHandler.NextQuestion)
			authed.POST("/sessions/:id/previous", sessionHandler.PrevQuestion)
			authed.POST("/sessions/:id/end", sessionHandler.EndSession)
			authed.GET("/sessions/:id/stats", sessionHandler.GetStats)
			authed.GET("/sessions/:id/questions/:questionId/responses", sessionHandler.GetQuestionResponses)
		}
	}

	router.GET("/ws/:code/:participantID", sessionHandler.HandleWebSocket)
}
