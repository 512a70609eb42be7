package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/repository"
	"github.com/arklim/social-platform-policy/internal/transport/http/middleware"
	"github.com/arklim/social-platform-policy/internal/usecase"
)

// CatalogHandler manages the role and permission catalog plus direct grants.
type CatalogHandler struct {
	catalog *usecase.CatalogService
}

// NewCatalogHandler builds a catalog handler.
func NewCatalogHandler(catalog *usecase.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// RegisterRoleRoutes attaches role catalog routes to the group.
func (h *CatalogHandler) RegisterRoleRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateRole)
	r.GET("", h.ListRoles)
	r.GET("/:id", h.GetRole)
	r.POST("/:id/permissions", h.AssignPermissions)
	r.DELETE("/:id/permissions", h.RevokePermissions)
}

// RegisterPermissionRoutes attaches permission catalog routes to the group.
func (h *CatalogHandler) RegisterPermissionRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreatePermission)
	r.GET("", h.ListPermissions)
}

// RegisterPrincipalRoutes attaches principal grant routes to the group.
func (h *CatalogHandler) RegisterPrincipalRoutes(r *gin.RouterGroup) {
	r.POST("/:id/roles", h.AssignRole)
	r.DELETE("/:id/roles/:roleID", h.RemoveRole)
}

// CreateRole godoc
// @Summary Create a role
// @Tags Catalog
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param request body RoleCreateRequest true "Role create request"
// @Success 201 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles [post]
func (h *CatalogHandler) CreateRole(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.catalog.CreateRole(c.Request.Context(), actorID, req.Name, req.Description)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
			{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "role already exists"},
		}, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, newRolePayload(*role))
}

// ListRoles godoc
// @Summary List roles
// @Tags Catalog
// @Produce json
// @Success 200 {object} RoleListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles [get]
func (h *CatalogHandler) ListRoles(c *gin.Context) {
	roles, err := h.catalog.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, newRolePayload(role))
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: payload})
}

// GetRole godoc
// @Summary Get a role
// @Tags Catalog
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} RolePayload
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id} [get]
func (h *CatalogHandler) GetRole(c *gin.Context) {
	role, err := h.catalog.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to get role")
		return
	}

	c.JSON(http.StatusOK, newRolePayload(*role))
}

// CreatePermission godoc
// @Summary Register a permission
// @Tags Catalog
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param request body PermissionCreateRequest true "Permission create request"
// @Success 201 {object} PermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/permissions [post]
func (h *CatalogHandler) CreatePermission(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req PermissionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	permission, err := h.catalog.CreatePermission(c.Request.Context(), actorID, req.ResourceType, req.Operation, req.ResourceID, req.Description)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "permission already exists"},
		}, http.StatusInternalServerError, "failed to create permission")
		return
	}

	c.JSON(http.StatusCreated, newPermissionPayload(*permission))
}

// ListPermissions godoc
// @Summary List permissions
// @Tags Catalog
// @Produce json
// @Success 200 {object} PermissionListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/permissions [get]
func (h *CatalogHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.catalog.ListPermissions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list permissions"))
		return
	}

	payload := make([]PermissionPayload, 0, len(permissions))
	for _, permission := range permissions {
		payload = append(payload, newPermissionPayload(permission))
	}

	c.JSON(http.StatusOK, PermissionListResponse{Permissions: payload})
}

// AssignPermissions godoc
// @Summary Grant permissions to a role
// @Tags Catalog
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Role ID"
// @Param request body RolePermissionsRequest true "Permission IDs"
// @Success 200 {object} RolePermissionsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id}/permissions [post]
func (h *CatalogHandler) AssignPermissions(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req RolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission assignment payload"))
		return
	}

	roleID := c.Param("id")
	affected, err := h.catalog.AssignPermissions(c.Request.Context(), actorID, roleID, req.PermissionIDs)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to assign permissions")
		return
	}

	c.JSON(http.StatusOK, RolePermissionsResponse{RoleID: roleID, Affected: affected})
}

// RevokePermissions godoc
// @Summary Revoke permissions from a role
// @Tags Catalog
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Role ID"
// @Param request body RolePermissionsRequest true "Permission IDs"
// @Success 200 {object} RolePermissionsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id}/permissions [delete]
func (h *CatalogHandler) RevokePermissions(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req RolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission revocation payload"))
		return
	}

	roleID := c.Param("id")
	affected, err := h.catalog.RevokePermissions(c.Request.Context(), actorID, roleID, req.PermissionIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke permissions"))
		return
	}

	c.JSON(http.StatusOK, RolePermissionsResponse{RoleID: roleID, Affected: affected})
}

// AssignRole godoc
// @Summary Assign a role directly to a principal
// @Tags Catalog
// @Accept json
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Principal ID"
// @Param request body PrincipalRoleRequest true "Role ID"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/principals/{id}/roles [post]
func (h *CatalogHandler) AssignRole(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	var req PrincipalRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role assignment payload"))
		return
	}

	if err := h.catalog.AssignRole(c.Request.Context(), actorID, c.Param("id"), req.RoleID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "principal not found"},
		}, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role assigned"})
}

// RemoveRole godoc
// @Summary Remove a role from a principal
// @Tags Catalog
// @Produce json
// @Param X-Principal-ID header string true "Acting principal"
// @Param id path string true "Principal ID"
// @Param roleID path string true "Role ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/principals/{id}/roles/{roleID} [delete]
func (h *CatalogHandler) RemoveRole(c *gin.Context) {
	actorID, ok := middleware.GetPrincipalID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing acting principal"))
		return
	}

	if err := h.catalog.RemoveRole(c.Request.Context(), actorID, c.Param("id"), c.Param("roleID")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "grant not found"},
		}, http.StatusInternalServerError, "failed to remove role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role removed"})
}
