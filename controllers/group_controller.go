package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scholarchat/chat_backend/chat"
)

type GroupController struct {
	chat *chat.Service
}

func NewGroupController(chatService *chat.Service) *GroupController {
	return &GroupController{chat: chatService}
}

type CreateGroupInput struct {
	Name string `json:"name" binding:"required" example:"deep-learning"`
}

// GetGroups godoc
// @Summary Get all groups
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/groups [get]
func (ctrl *GroupController) GetGroups(c *gin.Context) {
	groups, err := ctrl.chat.Groups()
	if err != nil {
		respondError(c, err, "Failed to fetch groups")
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// CreateGroup godoc
// @Summary Create a new group
// @Tags groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param group body CreateGroupInput true "Group creation"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Name already taken"
// @Router /api/groups [post]
func (ctrl *GroupController) CreateGroup(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input CreateGroupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := ctrl.chat.CreateGroup(input.Name, userID)
	if err != nil {
		if chat.IsConflict(err) {
			respondError(c, err, "A group with this name already exists")
			return
		}
		respondError(c, err, "Failed to create group")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// GetGroup godoc
// @Summary Get a single group with its members
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Group not found"
// @Router /api/groups/{id} [get]
func (ctrl *GroupController) GetGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	group, err := ctrl.chat.Group(groupID)
	if err != nil {
		respondError(c, err, "Group not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// JoinGroup godoc
// @Summary Join a group
// @Description Adds the authenticated user to the group's members. Joining
// a group you already belong to succeeds without change.
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Group not found"
// @Router /api/groups/{id}/join [post]
func (ctrl *GroupController) JoinGroup(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	group, err := ctrl.chat.JoinGroup(groupID, userID)
	if err != nil {
		respondError(c, err, "Group not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// GetMembers godoc
// @Summary Get a group's members in join order
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/groups/{id}/members [get]
func (ctrl *GroupController) GetMembers(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	members, err := ctrl.chat.Members(groupID)
	if err != nil {
		respondError(c, err, "Group not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// DeleteGroup godoc
// @Summary Delete a group and all its messages
// @Description Only the group's creator may delete it. Messages are purged
// before the group record is removed.
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string "Not the creator"
// @Router /api/groups/{id} [delete]
func (ctrl *GroupController) DeleteGroup(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	if err := ctrl.chat.DeleteGroup(groupID, userID); err != nil {
		if chat.IsForbidden(err) {
			respondError(c, err, "Only the creator can delete a group")
			return
		}
		respondError(c, err, "Failed to delete group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

func parseGroupID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, false
	}
	return uint(id), true
}
