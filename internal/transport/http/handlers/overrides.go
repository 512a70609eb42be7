package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/repository"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// OverrideHandler manages permission overrides.
type OverrideHandler struct {
	overrides *usecase.OverrideService
}

// NewOverrideHandler builds an override handler.
func NewOverrideHandler(overrides *usecase.OverrideService) *OverrideHandler {
	return &OverrideHandler{overrides: overrides}
}

// RegisterRoutes attaches override routes to the group.
func (h *OverrideHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateOverride)
	r.DELETE("/:id", h.DeactivateOverride)
}

// CreateOverride godoc
// @Summary Create a permission override
// @Description Creates an explicit allow or deny for a role and permission pair. Deny overrides beat any grant.
// @Tags Overrides
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param request body OverrideCreateRequest true "Override create request"
// @Success 201 {object} OverridePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/overrides [post]
func (h *OverrideHandler) CreateOverride(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req OverrideCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid override payload"))
		return
	}

	override, err := h.overrides.CreateOverride(c.Request.Context(), actorID, usecase.CreateOverrideInput{
		RoleID:       req.RoleID,
		PermissionID: req.PermissionID,
		OverrideType: domain.OverrideType(req.OverrideType),
		Conditions:   req.Conditions,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidOverride, Status: http.StatusBadRequest, Message: "invalid override configuration"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to create override")
		return
	}

	c.JSON(http.StatusCreated, newOverridePayload(*override))
}

// DeactivateOverride godoc
// @Summary Remove a permission override
// @Description Deactivates the override; decisions fall back to binding and hierarchy evaluation.
// @Tags Overrides
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Override ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/overrides/{id} [delete]
func (h *OverrideHandler) DeactivateOverride(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	if err := h.overrides.DeactivateOverride(c.Request.Context(), actorID, c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "override not found"},
		}, http.StatusInternalServerError, "failed to deactivate override")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "override deactivated"})
}
