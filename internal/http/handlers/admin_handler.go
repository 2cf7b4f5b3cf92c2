package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-escrow/internal/repository"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

// EventLister читает ленту событий из журнала.
type EventLister interface {
	ListEvents(ctx context.Context, filter repository.EventFilter) ([]entity.Event, error)
}

type AdminHandler struct {
	sys    *service.System
	events EventLister
}

// NewAdminHandler создаёт хэндлер администрирования. events может быть nil, если журнал не подключён.
func NewAdminHandler(sys *service.System, events EventLister) *AdminHandler {
	return &AdminHandler{sys: sys, events: events}
}

// GetRoles GET /roles/:address
func (h *AdminHandler) GetRoles(c *gin.Context) {
	addr, ok := paramAddress(c, "address")
	if !ok {
		return
	}
	roles, err := h.sys.Roles(c.Request.Context(), addr)
	if err != nil {
		fail(c, err)
		return
	}
	if roles == nil {
		roles = []authz.Role{}
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "roles": roles})
}

// GrantRole POST /admin/roles
func (h *AdminHandler) GrantRole(c *gin.Context) {
	h.changeRole(c, h.sys.GrantRole)
}

// RevokeRole DELETE /admin/roles
func (h *AdminHandler) RevokeRole(c *gin.Context) {
	h.changeRole(c, h.sys.RevokeRole)
}

type roleChange func(ctx context.Context, caller common.Address, role authz.Role, addr common.Address) error

func (h *AdminHandler) changeRole(c *gin.Context, change roleChange) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.RoleRequest
	if !bindJSON(c, &req) {
		return
	}
	addr, err := validation.ParseAddress("address", req.Address)
	if err != nil {
		fail(c, err)
		return
	}
	if err := change(c.Request.Context(), caller, authz.Role(req.Role), addr); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PauseStatus GET /pause
func (h *AdminHandler) PauseStatus(c *gin.Context) {
	state, err := h.sys.Pause.Status(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Pause POST /admin/pause. Без компонента останавливается вся система.
func (h *AdminHandler) Pause(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.PauseRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if err := validation.ValidateLength("reason", req.Reason, 0, validation.MaxPauseReasonLength); err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	var err error
	if req.Component == "" {
		err = h.sys.Pause.PauseAll(ctx, caller, req.Reason)
	} else {
		err = h.sys.Pause.Pause(ctx, caller, entity.Component(req.Component))
	}
	if err != nil {
		fail(c, err)
		return
	}
	h.PauseStatus(c)
}

// Unpause POST /admin/unpause
func (h *AdminHandler) Unpause(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	var req dto.PauseRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var err error
	if req.Component == "" {
		err = h.sys.Pause.UnpauseAll(ctx, caller)
	} else {
		err = h.sys.Pause.Unpause(ctx, caller, entity.Component(req.Component))
	}
	if err != nil {
		fail(c, err)
		return
	}
	h.PauseStatus(c)
}

// Audit GET /admin/audit
func (h *AdminHandler) Audit(c *gin.Context) {
	if !h.requireRole(c, authz.RoleAdmin) {
		return
	}
	c.JSON(http.StatusOK, dto.NewAuditResponse(h.sys.Audit()))
}

// MyEvents GET /events возвращает события, где вызывающий указан участником.
func (h *AdminHandler) MyEvents(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	filter, ok := eventFilter(c)
	if !ok {
		return
	}
	filter.Party = &caller
	h.listEvents(c, filter)
}

// AllEvents GET /admin/events?party=&type=
func (h *AdminHandler) AllEvents(c *gin.Context) {
	if !h.requireRole(c, authz.RoleAdmin) {
		return
	}
	filter, ok := eventFilter(c)
	if !ok {
		return
	}
	party, ok := queryAddress(c, "party")
	if !ok {
		return
	}
	filter.Party = party
	h.listEvents(c, filter)
}

func (h *AdminHandler) listEvents(c *gin.Context, filter repository.EventFilter) {
	if h.events == nil {
		fail(c, apperror.New(apperror.ErrCodePaused, "журнал событий не подключён"))
		return
	}
	events, err := h.events.ListEvents(c.Request.Context(), filter)
	if err != nil {
		fail(c, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось прочитать события"))
		return
	}
	c.JSON(http.StatusOK, dto.NewList(events))
}

func eventFilter(c *gin.Context) (repository.EventFilter, bool) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return repository.EventFilter{}, false
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return repository.EventFilter{}, false
	}
	return repository.EventFilter{Type: c.Query("type"), Limit: limit, Offset: offset}, true
}

// requireRole проверяет роль вызывающего для операций чтения без транзакции.
func (h *AdminHandler) requireRole(c *gin.Context, role authz.Role) bool {
	caller, ok := currentAddress(c)
	if !ok {
		return false
	}
	roles, err := h.sys.Roles(c.Request.Context(), caller)
	if err != nil {
		fail(c, err)
		return false
	}
	if !slices.Contains(roles, role) {
		fail(c, apperror.Reject(apperror.KindUnauthorizedCaller, "недостаточно прав").With("required", role))
		return false
	}
	return true
}
