package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

type BountyHandler struct {
	registry *service.BountyRegistry
	advisory *service.AdvisoryService
}

// NewBountyHandler создаёт хэндлер задач. advisory может быть nil, тогда подбор исполнителей недоступен.
func NewBountyHandler(registry *service.BountyRegistry, advisory *service.AdvisoryService) *BountyHandler {
	return &BountyHandler{registry: registry, advisory: advisory}
}

// CreateBounty POST /bounties
func (h *BountyHandler) CreateBounty(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.CreateBountyRequest
	if !bindJSON(c, &req) {
		return
	}

	value, err := validation.ParseAmount("value", req.Value)
	if err != nil {
		fail(c, err)
		return
	}
	if err := validation.ValidateHash("requirements_hash", req.RequirementsHash, true); err != nil {
		fail(c, err)
		return
	}
	if req.ReviewPeriodHours > validation.MaxReviewPeriodHours {
		fail(c, apperror.Reject(apperror.KindInvalidInput, "срок проверки слишком большой").
			With("field", "review_period_hours").
			With("max", validation.MaxReviewPeriodHours))
		return
	}

	bounty, err := h.registry.CreateBounty(c.Request.Context(), caller, entity.BountyTerms{
		Value:            value,
		RequirementsHash: req.RequirementsHash,
		Deadline:         req.Deadline,
		MinRepRequired:   req.MinRepRequired,
		MaxRevisions:     req.MaxRevisions,
		ReviewPeriod:     time.Duration(req.ReviewPeriodHours) * time.Hour,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewBountyResponse(bounty))
}

// ListBounties GET /bounties?status=&client=&freelancer=
func (h *BountyHandler) ListBounties(c *gin.Context) {
	var filter service.BountyFilter
	if raw := c.Query("status"); raw != "" {
		status, err := valueobject.NewBountyStatus(raw)
		if err != nil {
			fail(c, err)
			return
		}
		filter.Status = status
	}
	client, ok := queryAddress(c, "client")
	if !ok {
		return
	}
	if client != nil {
		filter.Client = *client
	}
	freelancer, ok := queryAddress(c, "freelancer")
	if !ok {
		return
	}
	if freelancer != nil {
		filter.Freelancer = *freelancer
	}

	bounties, err := h.registry.ListBounties(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewList(dto.NewBountyList(bounties)))
}

// GetBounty GET /bounties/:id
func (h *BountyHandler) GetBounty(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bounty, err := h.registry.GetBounty(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBountyResponse(bounty))
}

// ClaimBounty POST /bounties/:id/claim
func (h *BountyHandler) ClaimBounty(c *gin.Context) {
	h.act(c, h.registry.ClaimBounty)
}

// ExpireBounty POST /bounties/:id/expire
func (h *BountyHandler) ExpireBounty(c *gin.Context) {
	h.act(c, h.registry.ExpireBounty)
}

// RequestCancellation POST /bounties/:id/cancellation
func (h *BountyHandler) RequestCancellation(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.CancellationRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.ValidateHash("reason_hash", req.ReasonHash, true); err != nil {
		fail(c, err)
		return
	}

	request, err := h.registry.RequestCancellation(c.Request.Context(), caller, id, req.ReasonHash)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// GetCancellation GET /bounties/:id/cancellation
func (h *BountyHandler) GetCancellation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	request, err := h.registry.GetCancellation(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// ApproveCancellation POST /bounties/:id/cancellation/approve
func (h *BountyHandler) ApproveCancellation(c *gin.Context) {
	h.act(c, h.registry.ApproveCancellation)
}

// ProcessExpiredCancellation POST /bounties/:id/cancellation/process
func (h *BountyHandler) ProcessExpiredCancellation(c *gin.Context) {
	h.act(c, h.registry.ProcessExpiredCancellation)
}

// RejectCancellation POST /bounties/:id/cancellation/reject
func (h *BountyHandler) RejectCancellation(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.registry.RejectCancellation(c.Request.Context(), caller, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RankCandidates GET /bounties/:id/candidates
func (h *BountyHandler) RankCandidates(c *gin.Context) {
	if h.advisory == nil {
		fail(c, apperror.New(apperror.ErrCodePaused, "AI сервис не настроен"))
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	result, err := h.advisory.RankCandidates(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type bountyAction func(ctx context.Context, caller common.Address, bountyID uint64) (*entity.Bounty, error)

// act выполняет операцию над задачей без тела запроса.
func (h *BountyHandler) act(c *gin.Context, action bountyAction) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	bounty, err := action(c.Request.Context(), caller, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBountyResponse(bounty))
}
