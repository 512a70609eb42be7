package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// DecisionHandler exposes the access decision endpoint.
type DecisionHandler struct {
	decisions *usecase.DecisionService
}

// NewDecisionHandler builds a decision handler.
func NewDecisionHandler(decisions *usecase.DecisionService) *DecisionHandler {
	return &DecisionHandler{decisions: decisions}
}

// RegisterRoutes attaches decision routes to the group.
func (h *DecisionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Decide)
}

// Decide godoc
// @Summary Evaluate an access decision
// @Description Decides whether the principal may perform the operation on the resource under the supplied runtime context. Always returns 200 with a structured result; denial reasons are carried in the body.
// @Tags Decisions
// @Accept json
// @Produce json
// @Param request body DecisionRequest true "Decision request"
// @Success 200 {object} DecisionResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/decisions [post]
func (h *DecisionHandler) Decide(c *gin.Context) {
	if h.decisions == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "decision handler not fully configured"))
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid decision payload"))
		return
	}

	// Callers deciding on behalf of another principal pass principal_id in
	// the body; otherwise the forwarded identity header is used.
	principalID := strings.TrimSpace(req.PrincipalID)
	if principalID == "" {
		principalID, _ = middleware.GetPrincipalID(c)
	}

	actx := domain.AccessContext{
		OriginIP:       strings.TrimSpace(req.Context.OriginIP),
		DeviceType:     strings.TrimSpace(req.Context.DeviceType),
		UserAgent:      req.Context.UserAgent,
		DeviceVerified: req.Context.DeviceVerified,
	}
	if req.Context.Timestamp != nil {
		actx.Now = req.Context.Timestamp.UTC()
	}
	if actx.OriginIP == "" {
		actx.OriginIP = c.ClientIP()
	}
	if actx.UserAgent == "" {
		actx.UserAgent = c.Request.UserAgent()
	}

	result := h.decisions.Decide(c.Request.Context(), usecase.DecideInput{
		PrincipalID:  principalID,
		ResourceType: strings.TrimSpace(req.ResourceType),
		ResourceID:   strings.TrimSpace(req.ResourceID),
		Operation:    strings.TrimSpace(req.Operation),
		Context:      actx,
	})

	c.JSON(http.StatusOK, DecisionResponse{
		Granted:         result.Granted,
		Reason:          result.Reason,
		ConditionsMet:   result.ConditionsMet,
		MatchedRoleID:   result.MatchedRoleID,
		FailedCondition: result.FailedCondition,
	})
}
