package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/repository"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// BindingHandler manages conditional permission bindings.
type BindingHandler struct {
	bindings *usecase.BindingService
}

// NewBindingHandler builds a binding handler.
func NewBindingHandler(bindings *usecase.BindingService) *BindingHandler {
	return &BindingHandler{bindings: bindings}
}

// RegisterRoutes attaches binding routes to the group.
func (h *BindingHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateBinding)
	r.DELETE("/:id", h.DeactivateBinding)
}

// CreateBinding godoc
// @Summary Attach conditions to a role's permission grant
// @Description Creates a conditional binding. At least one condition category must be configured.
// @Tags Bindings
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param request body BindingCreateRequest true "Binding create request"
// @Success 201 {object} BindingPayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/bindings [post]
func (h *BindingHandler) CreateBinding(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req BindingCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid binding payload"))
		return
	}

	binding, err := h.bindings.CreateBinding(c.Request.Context(), actorID, usecase.CreateBindingInput{
		RoleID:       req.RoleID,
		PermissionID: req.PermissionID,
		Conditions:   req.Conditions,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmptyConditions, Status: http.StatusBadRequest, Message: "at least one condition category is required"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to create binding")
		return
	}

	c.JSON(http.StatusCreated, newBindingPayload(*binding))
}

// DeactivateBinding godoc
// @Summary Remove a conditional binding
// @Description Deactivates the binding; subsequent decisions no longer evaluate its conditions.
// @Tags Bindings
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Binding ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/bindings/{id} [delete]
func (h *BindingHandler) DeactivateBinding(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	if err := h.bindings.DeactivateBinding(c.Request.Context(), actorID, c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "binding not found"},
		}, http.StatusInternalServerError, "failed to deactivate binding")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "binding deactivated"})
}
