package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/repository"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// RuleHandler manages dynamic assignment rules and the event intake that
// triggers them.
type RuleHandler struct {
	assignments *usecase.AssignmentService
}

// NewRuleHandler builds a rule handler.
func NewRuleHandler(assignments *usecase.AssignmentService) *RuleHandler {
	return &RuleHandler{assignments: assignments}
}

// RegisterRoutes attaches rule routes to the group.
func (h *RuleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateRule)
	r.DELETE("/:id", h.DeactivateRule)
}

// CreateRule godoc
// @Summary Create an assignment rule
// @Description Registers a rule that auto-assigns the target role when a matching event arrives.
// @Tags Rules
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param request body RuleCreateRequest true "Rule create request"
// @Success 201 {object} RulePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req RuleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid rule payload"))
		return
	}

	rule, err := h.assignments.CreateRule(c.Request.Context(), actorID, usecase.CreateRuleInput{
		Name:         req.Name,
		Description:  req.Description,
		TriggerType:  req.TriggerType,
		TargetRoleID: req.TargetRoleID,
		Conditions:   req.Conditions,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRule, Status: http.StatusBadRequest, Message: "invalid rule configuration"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "target role not found"},
		}, http.StatusInternalServerError, "failed to create rule")
		return
	}

	c.JSON(http.StatusCreated, newRulePayload(*rule))
}

// DeactivateRule godoc
// @Summary Deactivate an assignment rule
// @Description Stops the rule from matching future events. Roles it already granted stay in place.
// @Tags Rules
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Rule ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/rules/{id} [delete]
func (h *RuleHandler) DeactivateRule(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	if err := h.assignments.DeactivateRule(c.Request.Context(), actorID, c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "rule not found"},
		}, http.StatusInternalServerError, "failed to deactivate rule")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "rule deactivated"})
}

// OnEvent godoc
// @Summary Report a principal lifecycle event
// @Description Evaluates active assignment rules for the trigger and assigns matching roles. Replaying the same event is a no-op.
// @Tags Events
// @Accept json
// @Produce json
// @Param request body EventRequest true "Event payload"
// @Success 200 {object} EventResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/events [post]
func (h *RuleHandler) OnEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid event payload"))
		return
	}

	assigned, err := h.assignments.OnEvent(c.Request.Context(), req.TriggerType, req.PrincipalID, req.Attributes)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "principal not found"},
		}, http.StatusInternalServerError, "failed to process event")
		return
	}

	if assigned == nil {
		assigned = []string{}
	}

	c.JSON(http.StatusOK, EventResponse{AssignedRoleIDs: assigned})
}
