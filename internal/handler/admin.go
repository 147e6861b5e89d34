package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agent-lounge/internal/auth"
	"agent-lounge/internal/lounge"
	"agent-lounge/internal/model"
	"agent-lounge/internal/protocol"
	"agent-lounge/internal/rooms"
)

type AdminHandler struct {
	Lounge       *lounge.Lounge
	TokenConfig  auth.TokenConfig
	PasswordHash string
}

type loginBody struct {
	Password string `json:"password"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	match, err := auth.ComparePassword(body.Password, h.PasswordHash)
	if err != nil || !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateAdminToken(h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AdminHandler) ListAgents(c *gin.Context) {
	agents := h.Lounge.Agents()
	infos := make([]protocol.AgentInfo, 0, len(agents))
	for _, agent := range agents {
		infos = append(infos, protocol.AgentInfoFrom(agent, false))
	}
	c.JSON(http.StatusOK, gin.H{"agents": infos})
}

func (h *AdminHandler) DeleteAgent(c *gin.Context) {
	if err := h.Lounge.AdminDeleteAgent(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown agent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type roomBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

func (h *AdminHandler) CreateRoom(c *gin.Context) {
	var body roomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.Lounge.AdminCreateRoom(model.Room{
		Name:        body.Name,
		Description: body.Description,
		Prompt:      body.Prompt,
	})
	switch {
	case errors.Is(err, lounge.ErrInvalidRoomName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room name"})
		return
	case errors.Is(err, rooms.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Room already exists"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func (h *AdminHandler) UpdateRoom(c *gin.Context) {
	var body roomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.Lounge.AdminUpdateRoom(c.Param("room"), body.Description, body.Prompt)
	if errors.Is(err, rooms.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown room"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) DeleteRoom(c *gin.Context) {
	err := h.Lounge.AdminDeleteRoom(c.Param("room"))
	switch {
	case errors.Is(err, rooms.ErrDefaultRoom):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Default room cannot be deleted"})
		return
	case errors.Is(err, rooms.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown room"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
