package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/bounty-escrow/internal/dto"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/validation"
)

type SubmissionHandler struct {
	submissions *service.SubmissionManager
}

func NewSubmissionHandler(submissions *service.SubmissionManager) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// SubmitWork POST /bounties/:id/submission
func (h *SubmissionHandler) SubmitWork(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	bountyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SubmitWorkRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.ValidateHash("work_hash", req.WorkHash, true); err != nil {
		fail(c, err)
		return
	}

	sub, err := h.submissions.SubmitWork(c.Request.Context(), caller, bountyID, req.WorkHash)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// GetSubmissionForBounty GET /bounties/:id/submission
func (h *SubmissionHandler) GetSubmissionForBounty(c *gin.Context) {
	bountyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := h.submissions.GetSubmissionForBounty(c.Request.Context(), bountyID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetSubmission GET /submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := h.submissions.GetSubmission(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// StartReview POST /submissions/:id/review
func (h *SubmissionHandler) StartReview(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := h.submissions.StartReview(c.Request.Context(), caller, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// AcceptSubmission POST /submissions/:id/accept
func (h *SubmissionHandler) AcceptSubmission(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	feedback, ok := feedbackHash(c)
	if !ok {
		return
	}
	sub, err := h.submissions.AcceptSubmission(c.Request.Context(), caller, id, feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// RejectSubmission POST /submissions/:id/reject
func (h *SubmissionHandler) RejectSubmission(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	feedback, ok := feedbackHash(c)
	if !ok {
		return
	}
	sub, err := h.submissions.RejectSubmission(c.Request.Context(), caller, id, feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ResubmitWork POST /submissions/:id/resubmit
func (h *SubmissionHandler) ResubmitWork(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SubmitWorkRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.ValidateHash("work_hash", req.WorkHash, true); err != nil {
		fail(c, err)
		return
	}
	sub, err := h.submissions.ResubmitWork(c.Request.Context(), caller, id, req.WorkHash)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// AutoAcceptExpiredReview POST /submissions/:id/auto-accept
func (h *SubmissionHandler) AutoAcceptExpiredReview(c *gin.Context) {
	caller, ok := currentAddress(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := h.submissions.AutoAcceptExpiredReview(c.Request.Context(), caller, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// feedbackHash читает необязательное тело с feedback_hash. Пустой отзыв при отклонении отвергает домен.
func feedbackHash(c *gin.Context) (string, bool) {
	var req dto.FeedbackRequest
	if !bindOptionalJSON(c, &req) {
		return "", false
	}
	if err := validation.ValidateHash("feedback_hash", req.FeedbackHash, false); err != nil {
		fail(c, err)
		return "", false
	}
	return req.FeedbackHash, true
}
