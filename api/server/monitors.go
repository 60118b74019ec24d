package server

import (
	"net/http"
	"time"

	"uptime/api/middleware"
	"uptime/internal/elasticsearch"
	"uptime/internal/models"

	"github.com/gin-gonic/gin"
)

func monitorOwner(m *models.Monitor) uint32 { return m.CreatedBy }

func (s *Server) addMonitor(c *gin.Context) {
	var req MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := ConvertMonitorRequest(req, middleware.UserID(c))
	if err := s.Store.CreateMonitor(c.Request.Context(), m); err != nil {
		respondError(c, err, "Failed to create monitor")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      m.ID,
		"message": "Monitor created successfully",
	})
}

func (s *Server) listMonitors(c *gin.Context) {
	monitors, err := s.Store.ListMonitors(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "Failed to list monitors")
		return
	}

	c.JSON(http.StatusOK, gin.H{"monitors": monitors})
}

func (s *Server) getMonitor(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	m, ok := owned(c, s.Store.GetMonitor, id, monitorOwner, "Monitor")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, m)
}

func (s *Server) updateMonitor(c *gin.Context) {
	var req struct {
		IDRequest
		MonitorRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, ok := owned(c, s.Store.GetMonitor, req.ID, monitorOwner, "Monitor")
	if !ok {
		return
	}
	ApplyMonitorRequest(m, req.MonitorRequest)
	if err := s.Store.UpdateMonitor(c.Request.Context(), m); err != nil {
		respondError(c, err, "Failed to update monitor")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Monitor updated successfully"})
}

func (s *Server) removeMonitor(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetMonitor, id, monitorOwner, "Monitor"); !ok {
		return
	}
	if err := s.Store.DeleteMonitor(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete monitor")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Monitor deleted successfully"})
}

// checkMonitor runs a check right away, even for inactive monitors.
func (s *Server) checkMonitor(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetMonitor, id, monitorOwner, "Monitor"); !ok {
		return
	}

	out, err := s.Monitors.CheckNow(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to check monitor")
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) monitorHistory(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetMonitor, id, monitorOwner, "Monitor"); !ok {
		return
	}

	entries, err := s.History.Recent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to load history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (s *Server) monitorDaily(c *gin.Context) {
	var req struct {
		ID   uint32 `json:"id" binding:"required"`
		Days int    `json:"days" binding:"omitempty,min=1,max=365"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := owned(c, s.Store.GetMonitor, req.ID, monitorOwner, "Monitor"); !ok {
		return
	}
	if req.Days == 0 {
		req.Days = 30
	}

	stats, err := s.History.Daily(c.Request.Context(), req.ID, req.Days)
	if err != nil {
		respondError(c, err, "Failed to load daily stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// 归档检查记录查询
type LogSearchRequest struct {
	MonitorID uint32 `json:"monitor_id" binding:"required"`
	Status    string `json:"status,omitempty"`
	StartTime *int64 `json:"start_time,omitempty"` // Unix timestamp
	EndTime   *int64 `json:"end_time,omitempty"`   // Unix timestamp
	Size      int    `json:"size,omitempty"`
	From      int    `json:"from,omitempty"`
	QueryText string `json:"query_text,omitempty"`
}

func (s *Server) searchLogs(c *gin.Context) {
	if s.ES == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Elasticsearch is not enabled"})
		return
	}

	var req LogSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := owned(c, s.Store.GetMonitor, req.MonitorID, monitorOwner, "Monitor"); !ok {
		return
	}

	query := elasticsearch.SearchQuery{
		MonitorID: &req.MonitorID,
		Status:    req.Status,
		Size:      req.Size,
		From:      req.From,
		Text:      req.QueryText,
	}
	if req.StartTime != nil {
		t := time.Unix(*req.StartTime, 0)
		query.StartTime = &t
	}
	if req.EndTime != nil {
		t := time.Unix(*req.EndTime, 0)
		query.EndTime = &t
	}

	result, err := s.ES.Search(c.Request.Context(), query)
	if err != nil {
		respondError(c, err, "Failed to search logs")
		return
	}

	c.JSON(http.StatusOK, result)
}

type LogStatsRequest struct {
	MonitorID uint32 `json:"monitor_id" binding:"required"`
	StartTime int64  `json:"start_time"` // Unix timestamp
	EndTime   int64  `json:"end_time"`   // Unix timestamp
}

func (s *Server) getLogStats(c *gin.Context) {
	if s.ES == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Elasticsearch is not enabled"})
		return
	}

	var req LogStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := owned(c, s.Store.GetMonitor, req.MonitorID, monitorOwner, "Monitor"); !ok {
		return
	}

	// 默认最近24小时
	startTime := time.Unix(req.StartTime, 0)
	if req.StartTime == 0 {
		startTime = time.Now().Add(-24 * time.Hour)
	}
	endTime := time.Unix(req.EndTime, 0)
	if req.EndTime == 0 {
		endTime = time.Now()
	}

	stats, err := s.ES.Stats(c.Request.Context(), req.MonitorID, startTime, endTime)
	if err != nil {
		respondError(c, err, "Failed to load log stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}
