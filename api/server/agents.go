package server

import (
	"net/http"
	"strings"

	"uptime/api/middleware"
	"uptime/internal/agent"
	"uptime/internal/alert"
	"uptime/internal/models"

	"github.com/gin-gonic/gin"
)

func agentOwner(a *models.Agent) uint32 { return a.CreatedBy }

type AgentRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) addAgent(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := &models.Agent{
		Name:      strings.TrimSpace(req.Name),
		CreatedBy: middleware.UserID(c),
	}
	if err := s.Store.CreateAgent(c.Request.Context(), a); err != nil {
		respondError(c, err, "Failed to create agent")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      a.ID,
		"message": "Agent created successfully",
	})
}

func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.Store.ListAgents(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "Failed to list agents")
		return
	}

	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (s *Server) getAgent(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	a, ok := owned(c, s.Store.GetAgent, id, agentOwner, "Agent")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, a)
}

func (s *Server) updateAgent(c *gin.Context) {
	var req struct {
		IDRequest
		AgentRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, ok := owned(c, s.Store.GetAgent, req.ID, agentOwner, "Agent")
	if !ok {
		return
	}
	if err := s.Store.RenameAgent(c.Request.Context(), a.ID, strings.TrimSpace(req.Name)); err != nil {
		respondError(c, err, "Failed to update agent")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Agent updated successfully"})
}

func (s *Server) removeAgent(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, ok := owned(c, s.Store.GetAgent, id, agentOwner, "Agent"); !ok {
		return
	}
	if err := s.Store.DeleteAgent(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete agent")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Agent deleted successfully"})
}

// AgentReportRequest is one metric upload; usages are percentages.
type AgentReportRequest struct {
	ID          uint32   `json:"id" binding:"required"`
	Hostname    string   `json:"hostname"`
	IPAddresses []string `json:"ip_addresses"`
	OS          string   `json:"os"`
	CPU         float64  `json:"cpu" binding:"min=0,max=100"`
	Memory      float64  `json:"memory" binding:"min=0,max=100"`
	Disk        float64  `json:"disk" binding:"min=0,max=100"`
}

func (s *Server) reportAgent(c *gin.Context) {
	var req AgentReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := owned(c, s.Store.GetAgent, req.ID, agentOwner, "Agent"); !ok {
		return
	}

	a, err := s.Agents.Report(c.Request.Context(), req.ID, agent.Report{
		Hostname:     req.Hostname,
		IPAddresses:  req.IPAddresses,
		OS:           req.OS,
		MetricSample: alert.MetricSample{CPU: req.CPU, Memory: req.Memory, Disk: req.Disk},
	})
	if err != nil {
		respondError(c, err, "Failed to record report")
		return
	}

	c.JSON(http.StatusOK, a)
}

func (s *Server) sweepAgents(c *gin.Context) {
	n, err := s.Agents.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to sweep agents")
		return
	}

	c.JSON(http.StatusOK, gin.H{"offline": n})
}
