package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/repository"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// DelegationHandler manages time-bounded role delegations.
type DelegationHandler struct {
	delegations *usecase.DelegationService
}

// NewDelegationHandler builds a delegation handler.
func NewDelegationHandler(delegations *usecase.DelegationService) *DelegationHandler {
	return &DelegationHandler{delegations: delegations}
}

// RegisterRoutes attaches delegation routes to the group.
func (h *DelegationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Delegate)
	r.DELETE("/:id", h.Revoke)
}

// Delegate godoc
// @Summary Delegate a role to another principal
// @Description The acting principal lends a directly held role to the delegatee until the expiry instant.
// @Tags Delegations
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal (delegator)"
// @Param request body DelegationCreateRequest true "Delegation create request"
// @Success 201 {object} DelegationPayload
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/delegations [post]
func (h *DelegationHandler) Delegate(c *gin.Context) {
	delegatorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req DelegationCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid delegation payload"))
		return
	}

	delegation, err := h.delegations.Delegate(c.Request.Context(), delegatorID, req.DelegateeID, req.RoleID, req.ExpiresAt)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDelegatorLacksRole, Status: http.StatusForbidden, Message: "delegator does not directly hold the role"},
			{Err: usecase.ErrInvalidExpiry, Status: http.StatusBadRequest, Message: "expiry must be in the future"},
			{Err: usecase.ErrDelegateeAlreadyHolds, Status: http.StatusConflict, Message: "delegatee already holds the role"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "delegatee not found"},
		}, http.StatusInternalServerError, "failed to create delegation")
		return
	}

	c.JSON(http.StatusCreated, newDelegationPayload(*delegation, time.Now().UTC()))
}

// Revoke godoc
// @Summary Revoke a delegation
// @Description Revocation is terminal; an expired or already revoked delegation cannot be revoked again.
// @Tags Delegations
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Delegation ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/delegations/{id} [delete]
func (h *DelegationHandler) Revoke(c *gin.Context) {
	if _, ok := middleware.GetPrincipalID(c); !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	if err := h.delegations.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "delegation not found"},
			{Err: usecase.ErrDelegationNotActive, Status: http.StatusConflict, Message: "delegation is not active"},
		}, http.StatusInternalServerError, "failed to revoke delegation")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "delegation revoked"})
}
