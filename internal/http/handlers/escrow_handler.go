package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

type EscrowHandler struct {
	escrow *service.PaymentEscrow
}

func NewEscrowHandler(escrow *service.PaymentEscrow) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// GetMyAccount GET /escrow/account
func (h *EscrowHandler) GetMyAccount(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	account, err := h.escrow.GetAccount(c.Request.Context(), caller)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAccountResponse(account))
}

// GetBountyEscrow GET /bounties/:id/escrow
func (h *EscrowHandler) GetBountyEscrow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	slot, err := h.escrow.GetEscrowBalance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewEscrowSlotResponse(slot))
}

// Withdraw POST /escrow/withdrawals
func (h *EscrowHandler) Withdraw(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := validation.ParseAmount("amount", req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	withdrawal, err := h.escrow.Withdraw(c.Request.Context(), caller, amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewWithdrawalResponse(withdrawal))
}

// ListWithdrawals GET /escrow/withdrawals
func (h *EscrowHandler) ListWithdrawals(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	items, err := h.escrow.ListWithdrawals(c.Request.Context(), caller)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewList(dto.NewWithdrawalList(items)))
}

// GetPlatformFee GET /escrow/fees
func (h *EscrowHandler) GetPlatformFee(c *gin.Context) {
	ctx := c.Request.Context()
	bps, err := h.escrow.FeeBps(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	balance, err := h.escrow.PlatformFeeBalance(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FeeResponse{FeeBps: bps, Balance: dto.Amount(balance)})
}

// WithdrawPlatformFees POST /admin/fees/withdraw
func (h *EscrowHandler) WithdrawPlatformFees(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	withdrawal, err := h.escrow.WithdrawPlatformFees(c.Request.Context(), caller)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewWithdrawalResponse(withdrawal))
}

// SetPlatformFee PUT /admin/fees
func (h *EscrowHandler) SetPlatformFee(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.PlatformFeeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.escrow.SetPlatformFee(c.Request.Context(), caller, req.FeeBps); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetTreasury PUT /admin/treasury
func (h *EscrowHandler) SetTreasury(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.AddressRequest
	if !bindJSON(c, &req) {
		return
	}
	treasury, err := validation.ParseAddress("address", req.Address)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.escrow.SetTreasury(c.Request.Context(), caller, treasury); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
