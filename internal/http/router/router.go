package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/bounty-escrow/internal/config"
	"github.com/ignatzorin/bounty-escrow/internal/http/handlers"
	"github.com/ignatzorin/bounty-escrow/internal/http/middleware"
)

// Handlers это набор хэндлеров API. Evidence и WS могут быть nil.
type Handlers struct {
	Auth       *handlers.AuthHandler
	Bounty     *handlers.BountyHandler
	Submission *handlers.SubmissionHandler
	Dispute    *handlers.DisputeHandler
	Reputation *handlers.ReputationHandler
	Escrow     *handlers.EscrowHandler
	Admin      *handlers.AdminHandler
	Evidence   *handlers.EvidenceHandler
	WS         *handlers.WSHandler
	Health     *handlers.HealthHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokens middleware.TokenParser) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	id := middleware.IDValidator("id")
	address := middleware.AddressValidator("address")

	if !cfg.IsProduction() {
		api.POST("/auth/dev-token", h.Auth.DevToken)
	}
	if h.WS != nil {
		api.GET("/ws", h.WS.Handle)
	}

	// Публичное чтение
	api.GET("/bounties", h.Bounty.ListBounties)
	api.GET("/bounties/:id", id, h.Bounty.GetBounty)
	api.GET("/bounties/:id/cancellation", id, h.Bounty.GetCancellation)
	api.GET("/bounties/:id/submission", id, h.Submission.GetSubmissionForBounty)
	api.GET("/bounties/:id/escrow", id, h.Escrow.GetBountyEscrow)
	api.GET("/submissions/:id", id, h.Submission.GetSubmission)
	api.GET("/disputes", h.Dispute.ListDisputes)
	api.GET("/disputes/:id", id, h.Dispute.GetDispute)
	api.GET("/reputation/:address", address, h.Reputation.GetReputation)
	api.GET("/reputation/:address/tier", address, h.Reputation.GetTier)
	api.GET("/reputation/:address/disputes", address, h.Reputation.GetDisputeStats)
	api.GET("/roles/:address", address, h.Admin.GetRoles)
	api.GET("/pause", h.Admin.PauseStatus)
	api.GET("/escrow/fees", h.Escrow.GetPlatformFee)
	if h.Evidence != nil {
		api.GET("/evidence/:hash", h.Evidence.Download)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.GET("/auth/me", h.Auth.Me)
		protected.GET("/events", h.Admin.MyEvents)

		protected.POST("/bounties", h.Bounty.CreateBounty)
		protected.POST("/bounties/:id/claim", id, h.Bounty.ClaimBounty)
		protected.POST("/bounties/:id/expire", id, h.Bounty.ExpireBounty)
		protected.POST("/bounties/:id/cancellation", id, h.Bounty.RequestCancellation)
		protected.POST("/bounties/:id/cancellation/approve", id, h.Bounty.ApproveCancellation)
		protected.POST("/bounties/:id/cancellation/reject", id, h.Bounty.RejectCancellation)
		protected.POST("/bounties/:id/cancellation/process", id, h.Bounty.ProcessExpiredCancellation)
		protected.GET("/bounties/:id/candidates", id, h.Bounty.RankCandidates)
		protected.POST("/bounties/:id/submission", id, h.Submission.SubmitWork)

		protected.POST("/submissions/:id/review", id, h.Submission.StartReview)
		protected.POST("/submissions/:id/accept", id, h.Submission.AcceptSubmission)
		protected.POST("/submissions/:id/reject", id, h.Submission.RejectSubmission)
		protected.POST("/submissions/:id/resubmit", id, h.Submission.ResubmitWork)
		protected.POST("/submissions/:id/auto-accept", id, h.Submission.AutoAcceptExpiredReview)

		protected.POST("/disputes", h.Dispute.InitiateDispute)
		protected.POST("/disputes/:id/analysis", id, h.Dispute.SubmitAIAnalysis)
		protected.POST("/disputes/:id/analyze", id, h.Dispute.AnalyzeDispute)
		protected.POST("/disputes/:id/assign", id, h.Dispute.AssignArbitrator)
		protected.POST("/disputes/:id/resolve", id, h.Dispute.ResolveDispute)
		protected.POST("/disputes/:id/appeal", id, h.Dispute.AppealRuling)
		protected.POST("/disputes/:id/finalize", id, h.Dispute.FinalizeRuling)
		protected.POST("/disputes/:id/timeout", id, h.Dispute.ResolveByTimeout)

		protected.POST("/reputation", h.Reputation.UpdateReputation)
		protected.POST("/reputation/:address/decay", address, h.Reputation.ApplyDecay)

		protected.GET("/escrow/account", h.Escrow.GetMyAccount)
		protected.GET("/escrow/withdrawals", h.Escrow.ListWithdrawals)
		protected.POST("/escrow/withdrawals", h.Escrow.Withdraw)

		if h.Evidence != nil {
			protected.POST("/evidence", h.Evidence.Upload)
			protected.GET("/evidence", h.Evidence.ListMine)
		}
	}

	admin := protected.Group("/admin")
	{
		admin.GET("/audit", h.Admin.Audit)
		admin.GET("/events", h.Admin.AllEvents)
		admin.POST("/roles", h.Admin.GrantRole)
		admin.DELETE("/roles", h.Admin.RevokeRole)
		admin.POST("/pause", h.Admin.Pause)
		admin.POST("/unpause", h.Admin.Unpause)
		admin.PUT("/fees", h.Escrow.SetPlatformFee)
		admin.POST("/fees/withdraw", h.Escrow.WithdrawPlatformFees)
		admin.PUT("/treasury", h.Escrow.SetTreasury)
		admin.POST("/reputation/:address", address, h.Reputation.AdjustReputation)
		admin.GET("/updaters", h.Reputation.ListUpdaters)
		admin.POST("/updaters", h.Reputation.AddUpdater)
		admin.DELETE("/updaters/:address", address, h.Reputation.RemoveUpdater)
	}

	return r
}
