package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ranqly/contest-engine/handlers"
	"github.com/ranqly/contest-engine/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	contestHandler *handlers.ContestHandler,
	entryHandler *handlers.EntryHandler,
	voteHandler *handlers.VoteHandler,
	judgeHandler *handlers.JudgeHandler,
	resultHandler *handlers.ResultHandler,
	auditHandler *handlers.AuditHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler())

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/contests", func(r chi.Router) {
		// Публичный каталог
		r.Get("/", contestHandler.ListHandler)
		r.Get("/{contestID}", contestHandler.GetByIDHandler)
		r.Get("/{contestID}/entries", entryHandler.ListByContestHandler)
		r.Get("/{contestID}/ranking", resultHandler.RankingHandler)
		r.Get("/{contestID}/overrides", contestHandler.ListOverridesHandler)
		r.Get("/{contestID}/audit-pack", auditHandler.GetHandler)
		r.Get("/{contestID}/votes/tally", voteHandler.TallyHandler)

		// Организаторы
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize("organizer", "admin"))

			r.Post("/", contestHandler.CreateHandler)
			r.Post("/{contestID}/transitions", contestHandler.TransitionHandler)
			r.Post("/{contestID}/judges", judgeHandler.AssignHandler)
			r.Post("/{contestID}/finalize", resultHandler.FinalizeHandler)
			r.Post("/{contestID}/audit-pack", auditHandler.BuildHandler)
		})

		// Внешний скорер (через админский аккаунт)
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize("admin"))

			r.Put("/{contestID}/scores/algorithmic", resultHandler.SetAlgorithmicScoreHandler)
		})

		// Участники и голосующие
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/{contestID}/entries", entryHandler.SubmitHandler)
			r.Post("/{contestID}/credentials", voteHandler.MintCredentialHandler)
			r.Post("/{contestID}/votes/commit", voteHandler.CommitHandler)
			r.Post("/{contestID}/votes/reveal", voteHandler.RevealHandler)
		})

		// Судьи
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize("judge"))

			r.Put("/{contestID}/ballot", judgeHandler.SubmitBallotHandler)
		})
	})

	router.Route("/entries", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Patch("/{entryID}", entryHandler.EditHandler)
		r.Post("/{entryID}/withdraw", entryHandler.WithdrawHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authorize("organizer", "admin"))
			r.Post("/{entryID}/disqualify", entryHandler.DisqualifyHandler)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Get("/me/entries", entryHandler.MyEntriesHandler)
	})

	router.Get("/ws/contests/{contestID}", webSocketHandler.ServeWs)
}
