package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/repository"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// HierarchyHandler manages role hierarchy edges and resolved permission views.
type HierarchyHandler struct {
	hierarchy *usecase.HierarchyService
}

// NewHierarchyHandler builds a hierarchy handler.
func NewHierarchyHandler(hierarchy *usecase.HierarchyService) *HierarchyHandler {
	return &HierarchyHandler{hierarchy: hierarchy}
}

// RegisterRoutes attaches hierarchy routes to the group.
func (h *HierarchyHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/edges", h.CreateEdge)
	r.DELETE("/edges/:id", h.DeactivateEdge)
}

// CreateEdge godoc
// @Summary Add a role hierarchy edge
// @Description Creates a parent to child inheritance edge. Edges that would close a cycle are rejected.
// @Tags Hierarchy
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param request body HierarchyEdgeCreateRequest true "Edge create request"
// @Success 201 {object} HierarchyEdgePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/hierarchy/edges [post]
func (h *HierarchyHandler) CreateEdge(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req HierarchyEdgeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid edge payload"))
		return
	}

	edge, err := h.hierarchy.CreateEdge(c.Request.Context(), actorID, usecase.CreateEdgeInput{
		ParentRoleID:           req.ParentRoleID,
		ChildRoleID:            req.ChildRoleID,
		InheritanceType:        domain.InheritanceType(req.InheritanceType),
		InheritedPermissionIDs: req.InheritedPermissionIDs,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrHierarchyCycle, Status: http.StatusConflict, Message: "edge would create a hierarchy cycle"},
			{Err: usecase.ErrInvalidInheritance, Status: http.StatusBadRequest, Message: "invalid inheritance configuration"},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
			{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "edge already exists"},
		}, http.StatusInternalServerError, "failed to create hierarchy edge")
		return
	}

	c.JSON(http.StatusCreated, newEdgePayload(*edge))
}

// DeactivateEdge godoc
// @Summary Remove a role hierarchy edge
// @Description Deactivates the edge and invalidates cached resolutions for affected roles.
// @Tags Hierarchy
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Edge ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/hierarchy/edges/{id} [delete]
func (h *HierarchyHandler) DeactivateEdge(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	if err := h.hierarchy.DeactivateEdge(c.Request.Context(), actorID, c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "hierarchy edge not found"},
		}, http.StatusInternalServerError, "failed to deactivate hierarchy edge")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "hierarchy edge deactivated"})
}

// EffectivePermissions godoc
// @Summary Resolve a role's effective permissions
// @Description Returns the role's direct and inherited permissions with inheritance provenance.
// @Tags Hierarchy
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} EffectivePermissionsResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id}/effective-permissions [get]
func (h *HierarchyHandler) EffectivePermissions(c *gin.Context) {
	roleID := c.Param("id")

	resolved, err := h.hierarchy.ResolveInheritedPermissions(c.Request.Context(), roleID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrHierarchyCycle, Status: http.StatusConflict, Message: "role hierarchy contains a cycle"},
		}, http.StatusInternalServerError, "failed to resolve effective permissions")
		return
	}

	payload := make([]EffectivePermissionPayload, 0, len(resolved))
	for _, effective := range resolved {
		payload = append(payload, newEffectivePermissionPayload(effective))
	}

	c.JSON(http.StatusOK, EffectivePermissionsResponse{
		RoleID:      roleID,
		Permissions: payload,
	})
}
