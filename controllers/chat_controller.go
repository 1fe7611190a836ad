package controllers

import (
	"net/http"

	"chatdesk/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ChatController struct {
	chat *services.ChatService
}

func NewChatController(chat *services.ChatService) *ChatController {
	return &ChatController{chat: chat}
}

func (cc *ChatController) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, cc.chat.Snapshot())
}

// HandleSend blocks until the reply (or the error message) has been appended.
func (cc *ChatController) HandleSend(c *gin.Context) {
	var request struct {
		Message string `json:"message" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		log.Debug().Err(err).Msg("binding send request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	if err := cc.chat.Send(c.Request.Context(), request.Message); err != nil {
		c.JSON(sendStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cc.chat.Snapshot())
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSendInFlight), errors.Is(err, services.ErrNoActiveConversation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (cc *ChatController) NewConversation(c *gin.Context) {
	cc.chat.NewConversation(c.Request.Context())
	c.JSON(http.StatusOK, cc.chat.Snapshot())
}

func (cc *ChatController) SwitchConversation(c *gin.Context) {
	if _, err := cc.chat.SwitchConversation(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to switch conversation"})
		return
	}
	c.JSON(http.StatusOK, cc.chat.Snapshot())
}

func (cc *ChatController) ClearChat(c *gin.Context) {
	cc.chat.ClearChat(c.Request.Context())
	c.JSON(http.StatusOK, cc.chat.Snapshot())
}

func (cc *ChatController) GetModels(c *gin.Context) {
	snap := cc.chat.Snapshot()
	c.JSON(http.StatusOK, gin.H{"models": snap.Models, "selected": snap.Model})
}

func (cc *ChatController) SelectModel(c *gin.Context) {
	var request struct {
		Model string `json:"model" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	if err := cc.chat.SelectModel(request.Model); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cc.chat.Snapshot())
}

func (cc *ChatController) ToggleDarkMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"darkMode": cc.chat.ToggleDarkMode()})
}

func (cc *ChatController) ToggleSidebar(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sidebarOpen": cc.chat.ToggleSidebar()})
}
