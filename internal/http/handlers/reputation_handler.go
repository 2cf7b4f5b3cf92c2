package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

type ReputationHandler struct {
	oracle   *service.ReputationOracle
	registry *service.BountyRegistry
}

func NewReputationHandler(oracle *service.ReputationOracle, registry *service.BountyRegistry) *ReputationHandler {
	return &ReputationHandler{oracle: oracle, registry: registry}
}

// GetReputation GET /reputation/:address
func (h *ReputationHandler) GetReputation(c *gin.Context) {
	addr, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	rep, err := h.oracle.GetReputation(c.Request.Context(), addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewReputationResponse(rep))
}

// GetTier GET /reputation/:address/tier
func (h *ReputationHandler) GetTier(c *gin.Context) {
	addr, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	tier, err := h.oracle.GetTier(ctx, addr)
	if err != nil {
		fail(c, err)
		return
	}
	active, err := h.registry.ActiveBountyCount(ctx, addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTierResponse(addr, tier, active))
}

// GetDisputeStats GET /reputation/:address/disputes
func (h *ReputationHandler) GetDisputeStats(c *gin.Context) {
	addr, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	stats, err := h.oracle.GetDisputeStats(c.Request.Context(), addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UpdateReputation POST /reputation
func (h *ReputationHandler) UpdateReputation(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.ReputationUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := validation.ParseAddress("user", req.User)
	if err != nil {
		fail(c, err)
		return
	}
	sig, err := validation.ParseSignature(req.Signature)
	if err != nil {
		fail(c, err)
		return
	}

	rep, err := h.oracle.UpdateReputation(c.Request.Context(), caller, service.ReputationUpdate{
		User:            user,
		Quality:         req.Quality,
		Reliability:     req.Reliability,
		Professionalism: req.Professionalism,
		Signature:       sig,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewReputationResponse(rep))
}

// ApplyDecay POST /reputation/:address/decay
func (h *ReputationHandler) ApplyDecay(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	addr, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	decayed, err := h.oracle.ApplyDecay(c.Request.Context(), caller, addr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "decayed": decayed})
}

// AdjustReputation POST /admin/reputation/:address
func (h *ReputationHandler) AdjustReputation(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	addr, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	var req dto.AdjustReputationRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.ValidateLength("justification", req.Justification, 1, validation.MaxJustificationLength); err != nil {
		fail(c, err)
		return
	}

	rep, err := h.oracle.AdminAdjustReputation(c.Request.Context(), caller, addr, req.NewOverall, req.Justification)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewReputationResponse(rep))
}

// ListUpdaters GET /admin/updaters
func (h *ReputationHandler) ListUpdaters(c *gin.Context) {
	updaters, err := h.oracle.Updaters(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewList(updaters))
}

// AddUpdater POST /admin/updaters
func (h *ReputationHandler) AddUpdater(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.AddressRequest
	if !bindJSON(c, &req) {
		return
	}
	updater, err := validation.ParseAddress("address", req.Address)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.oracle.AddAuthorizedUpdater(c.Request.Context(), caller, updater); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveUpdater DELETE /admin/updaters/:address
func (h *ReputationHandler) RemoveUpdater(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	updater, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	if err := h.oracle.RemoveAuthorizedUpdater(c.Request.Context(), caller, updater); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
