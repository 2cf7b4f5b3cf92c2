package handlers

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

type DisputeHandler struct {
	disputes *service.DisputeResolver
	advisory *service.AdvisoryService
}

func NewDisputeHandler(disputes *service.DisputeResolver, advisory *service.AdvisoryService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, advisory: advisory}
}

// InitiateDispute POST /disputes
func (h *DisputeHandler) InitiateDispute(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.InitiateDisputeRequest
	if !bindJSON(c, &req) {
		return
	}
	reason, err := valueobject.NewDisputeReason(req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	if err := validation.ValidateHash("evidence_hash", req.EvidenceHash, true); err != nil {
		fail(c, err)
		return
	}

	dispute, err := h.disputes.InitiateDispute(c.Request.Context(), caller, service.DisputeRequest{
		BountyID:     req.BountyID,
		SubmissionID: req.SubmissionID,
		Reason:       reason,
		EvidenceHash: req.EvidenceHash,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewDisputeResponse(dispute))
}

// ListDisputes GET /disputes?status=
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	status := valueobject.DisputeStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		fail(c, apperror.Reject(apperror.KindInvalidInput, "некорректный статус спора").With("status", status))
		return
	}
	disputes, err := h.disputes.ListDisputes(c.Request.Context(), status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewList(dto.NewDisputeList(disputes)))
}

// GetDispute GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	dispute, err := h.disputes.GetDispute(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDisputeResponse(dispute))
}

// SubmitAIAnalysis POST /disputes/:id/analysis
func (h *DisputeHandler) SubmitAIAnalysis(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.AIAnalysisRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.ValidateHash("recommendation_hash", req.RecommendationHash, true); err != nil {
		fail(c, err)
		return
	}

	dispute, err := h.disputes.SubmitAIAnalysis(c.Request.Context(), caller, id, entity.AIAnalysis{
		RecommendationHash: req.RecommendationHash,
		Confidence:         req.Confidence,
		ProposedOutcome:    valueobject.DisputeOutcome(req.ProposedOutcome),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDisputeResponse(dispute))
}

// AnalyzeDispute POST /disputes/:id/analyze запрашивает рекомендацию у AI провайдера.
func (h *DisputeHandler) AnalyzeDispute(c *gin.Context) {
	if h.advisory == nil {
		fail(c, apperror.New(apperror.ErrCodePaused, "AI сервис не настроен"))
		return
	}
	if _, ok := currentAddress(c); !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	analysis, err := h.advisory.AnalyzeDispute(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// AssignArbitrator POST /disputes/:id/assign
func (h *DisputeHandler) AssignArbitrator(c *gin.Context) {
	h.act(c, h.disputes.AssignArbitrator)
}

// ResolveDispute POST /disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveDisputeRequest
	if !bindJSON(c, &req) {
		return
	}
	outcome, err := valueobject.NewDisputeOutcome(req.Outcome)
	if err != nil {
		fail(c, err)
		return
	}

	dispute, err := h.disputes.ResolveDispute(c.Request.Context(), caller, id, outcome, req.FreelancerPct)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDisputeResponse(dispute))
}

// AppealRuling POST /disputes/:id/appeal
func (h *DisputeHandler) AppealRuling(c *gin.Context) {
	h.act(c, h.disputes.AppealRuling)
}

// FinalizeRuling POST /disputes/:id/finalize
func (h *DisputeHandler) FinalizeRuling(c *gin.Context) {
	h.act(c, h.disputes.FinalizeRuling)
}

// ResolveByTimeout POST /disputes/:id/timeout
func (h *DisputeHandler) ResolveByTimeout(c *gin.Context) {
	h.act(c, h.disputes.ResolveByTimeout)
}

type disputeAction func(ctx context.Context, caller common.Address, disputeID uint64) (*entity.Dispute, error)

func (h *DisputeHandler) act(c *gin.Context, action disputeAction) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	dispute, err := action(c.Request.Context(), caller, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDisputeResponse(dispute))
}
