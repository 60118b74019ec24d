package server

import (
	"fmt"
	"net/http"

	"uptime/internal/config"

	"github.com/gin-gonic/gin"
)

const redacted = "******"

// GetConfigResponse 获取配置响应
type GetConfigResponse struct {
	Config *config.Config `json:"config"`
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Config *config.Config `json:"config" binding:"required"`
}

// SetConfig 配置热加载后更新内存中的配置
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.config = cfg
	s.cfgMu.Unlock()
}

func (s *Server) currentConfig() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.config
}

// redact 返回隐藏密码后的副本
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Database.Password != "" {
		out.Database.Password = redacted
	}
	if out.Elasticsearch.Password != "" {
		out.Elasticsearch.Password = redacted
	}
	return &out
}

// getConfig 获取系统配置
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, GetConfigResponse{
		Config: redact(s.currentConfig()),
	})
}

// updateConfig 校验并保存配置文件，日志级别、通知和限流设置由文件监听热加载
func (s *Server) updateConfig(c *gin.Context) {
	if s.configPath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Service was started without a config file"})
		return
	}

	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 未修改的密码沿用当前值
	current := s.currentConfig()
	if req.Config.Database.Password == redacted {
		req.Config.Database.Password = current.Database.Password
	}
	if req.Config.Elasticsearch.Password == redacted {
		req.Config.Elasticsearch.Password = current.Elasticsearch.Password
	}

	// 验证配置
	if err := req.Config.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 保存配置到文件
	if err := config.SaveToFile(s.configPath, req.Config); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save config: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Configuration saved. Log level, alert and rate limit settings apply on reload; other changes need a restart.",
		"config":  redact(req.Config),
	})
}
