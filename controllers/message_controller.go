package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scholarchat/chat_backend/chat"
)

type MessageController struct {
	chat *chat.Service
}

func NewMessageController(chatService *chat.Service) *MessageController {
	return &MessageController{chat: chatService}
}

type CreateMessageInput struct {
	Content string `json:"content" binding:"required" example:"Hello, everyone!"`
}

// GetMessages godoc
// @Summary Get all messages for a group
// @Description Returns the group's messages in acceptance order, oldest
// first, each with its sender.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 404 {object} map[string]string "Group not found"
// @Router /api/groups/{id}/messages [get]
func (ctrl *MessageController) GetMessages(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	messages, err := ctrl.chat.Messages(groupID, userID)
	if err != nil {
		if chat.IsForbidden(err) {
			respondError(c, err, "You are not a member of this group")
			return
		}
		respondError(c, err, "Group not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// CreateMessage godoc
// @Summary Send a message to a group
// @Description Synchronous ingestion path: the message is persisted,
// broadcast to the group's room, and returned.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Param message body CreateMessageInput true "Message"
// @Success 201 {object} map[string]interface{}
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 503 {object} map[string]string "Storage unavailable"
// @Router /api/groups/{id}/messages [post]
func (ctrl *MessageController) CreateMessage(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := ctrl.chat.Send(groupID, userID, input.Content)
	if err != nil {
		switch {
		case chat.IsForbidden(err):
			respondError(c, err, "You are not a member of this group")
		case chat.IsNotFound(err):
			respondError(c, err, "Group not found")
		case chat.IsInvalidArgument(err):
			respondError(c, err, "Message content must not be empty")
		default:
			respondError(c, err, "Failed to send message")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": message})
}
