package server

import (
	"context"
	"net/http"

	"uptime/api/middleware"
	"uptime/internal/database"
	"uptime/internal/models"

	"github.com/gin-gonic/gin"
)

func channelOwner(ch *models.NotificationChannel) uint32   { return ch.CreatedBy }
func templateOwner(t *models.NotificationTemplate) uint32 { return t.CreatedBy }

// ---- channels ----

func (s *Server) addChannel(c *gin.Context) {
	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := ConvertChannelRequest(req, middleware.UserID(c))
	if err != nil {
		respondError(c, err, "Invalid channel config")
		return
	}
	if err := s.Store.CreateChannel(c.Request.Context(), ch); err != nil {
		respondError(c, err, "Failed to create channel")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      ch.ID,
		"message": "Channel created successfully",
	})
}

func (s *Server) listChannels(c *gin.Context) {
	channels, err := s.Store.ListChannels(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "Failed to list channels")
		return
	}

	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (s *Server) getChannel(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	ch, ok := owned(c, s.Store.GetChannel, id, channelOwner, "Channel")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ch)
}

func (s *Server) updateChannel(c *gin.Context) {
	var req struct {
		IDRequest
		ChannelRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existing, ok := owned(c, s.Store.GetChannel, req.ID, channelOwner, "Channel")
	if !ok {
		return
	}

	ch, err := ConvertChannelRequest(req.ChannelRequest, existing.CreatedBy)
	if err != nil {
		respondError(c, err, "Invalid channel config")
		return
	}
	ch.ID = existing.ID
	if req.Enabled == nil {
		ch.Enabled = existing.Enabled
	}
	if err := s.Store.UpdateChannel(c.Request.Context(), ch); err != nil {
		respondError(c, err, "Failed to update channel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Channel updated successfully"})
}

func (s *Server) removeChannel(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetChannel, id, channelOwner, "Channel"); !ok {
		return
	}
	if err := s.Store.DeleteChannel(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete channel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Channel deleted successfully"})
}

func (s *Server) testChannel(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetChannel, id, channelOwner, "Channel"); !ok {
		return
	}
	if err := s.Alerts.TestChannel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test notification sent"})
}

// ---- templates ----

func (s *Server) addTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := ConvertTemplateRequest(req, middleware.UserID(c))
	if err := s.Store.SaveTemplate(c.Request.Context(), t); err != nil {
		respondError(c, err, "Failed to create template")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      t.ID,
		"message": "Template created successfully",
	})
}

func (s *Server) listTemplates(c *gin.Context) {
	var req struct {
		Type string `json:"type" binding:"omitempty,oneof=monitor agent"`
	}
	if !bindOptional(c, &req) {
		return
	}
	templates, err := s.Store.ListTemplates(c.Request.Context(), middleware.UserID(c), req.Type)
	if err != nil {
		respondError(c, err, "Failed to list templates")
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) getTemplate(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	t, ok := owned(c, s.Store.GetTemplate, id, templateOwner, "Template")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTemplate(c *gin.Context) {
	var req struct {
		IDRequest
		TemplateRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existing, ok := owned(c, s.Store.GetTemplate, req.ID, templateOwner, "Template")
	if !ok {
		return
	}

	t := ConvertTemplateRequest(req.TemplateRequest, existing.CreatedBy)
	t.ID = existing.ID
	if err := s.Store.SaveTemplate(c.Request.Context(), t); err != nil {
		respondError(c, err, "Failed to update template")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Template updated successfully"})
}

func (s *Server) removeTemplate(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetTemplate, id, templateOwner, "Template"); !ok {
		return
	}
	if err := s.Store.DeleteTemplate(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete template")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}

// ---- settings ----

func (s *Server) listSettings(c *gin.Context) {
	settings, err := s.Store.ListNotificationSettings(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "Failed to list settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// saveSettings creates or fully replaces the settings of one target.
func (s *Server) saveSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.UserID(c)
	settings, err := ConvertSettingsRequest(req, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if !req.IsGlobal() && !s.ownsTarget(c, req.TargetType, req.TargetID) {
		return
	}
	for _, id := range settings.Channels {
		if _, ok := owned(c, s.Store.GetChannel, id, channelOwner, "Channel"); !ok {
			return
		}
	}
	if req.TemplateID != nil {
		t, ok := owned(c, s.Store.GetTemplate, *req.TemplateID, templateOwner, "Template")
		if !ok {
			return
		}
		if t.Type != req.TemplateType() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "template type does not match target"})
			return
		}
	}

	if err := s.Store.UpsertNotificationSettings(ctx, settings); err != nil {
		respondError(c, err, "Failed to save settings")
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (s *Server) removeSettings(c *gin.Context) {
	var req struct {
		TargetType string `json:"target_type" binding:"required,oneof=monitor agent"`
		TargetID   uint32 `json:"target_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.Store.DeleteNotificationSettings(c.Request.Context(), middleware.UserID(c), req.TargetType, req.TargetID)
	if err != nil {
		respondError(c, err, "Failed to delete settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings deleted successfully"})
}

// ownsTarget writes a 404 unless the caller owns the monitor or agent.
func (s *Server) ownsTarget(c *gin.Context, targetType string, id uint32) bool {
	if targetType == models.TargetAgent {
		_, ok := owned(c, s.Store.GetAgent, id, agentOwner, "Agent")
		return ok
	}
	_, ok := owned(c, s.Store.GetMonitor, id, monitorOwner, "Monitor")
	return ok
}

// ---- notification history ----

type NotificationHistoryRequest struct {
	Type     string `json:"type" binding:"required,oneof=monitor agent"`
	TargetID uint32 `json:"target_id" binding:"required"`
	Status   string `json:"status" binding:"omitempty,oneof=sent failed"`
	Page     int    `json:"page" binding:"omitempty,min=1"`
	PageSize int    `json:"page_size" binding:"omitempty,min=1,max=100"`
}

func (s *Server) listNotificationHistory(c *gin.Context) {
	var req NotificationHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.ownsTarget(c, req.Type, req.TargetID) {
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	list, total, err := s.listHistory(c.Request.Context(), database.HistoryFilter{
		Type:     req.Type,
		TargetID: &req.TargetID,
		Status:   req.Status,
		Limit:    req.PageSize,
		Offset:   (req.Page - 1) * req.PageSize,
	})
	if err != nil {
		respondError(c, err, "Failed to list notification history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history":   list,
		"total":     total,
		"page":      req.Page,
		"page_size": req.PageSize,
	})
}

func (s *Server) listHistory(ctx context.Context, f database.HistoryFilter) ([]models.NotificationHistory, int64, error) {
	list, total, err := s.Store.ListNotificationHistory(ctx, f)
	if list == nil {
		list = []models.NotificationHistory{}
	}
	return list, total, err
}
