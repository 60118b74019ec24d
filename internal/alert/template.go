package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"uptime/internal/models"
)

// TimeLayout ${time} 的时间格式
const TimeLayout = "2006-01-02 15:04:05"

var placeholder = regexp.MustCompile(`\$\{(\w+)\}`)

// Render 替换 ${name} 变量，未知变量保持原样
func Render(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
}

// Message 渲染后的通知
type Message struct {
	Subject string
	Body    string
	Event   Event
}

// RenderMessage 为 ev 渲染模板
func RenderMessage(tpl models.NotificationTemplate, ev Event) Message {
	return Message{
		Subject: Render(tpl.Subject, ev.Vars),
		Body:    Render(tpl.Content, ev.Vars),
		Event:   ev,
	}
}

// FallbackTemplate 用户没有该类型模板时使用的内置模板
func FallbackTemplate(target string) models.NotificationTemplate {
	if target == TargetAgent {
		return models.NotificationTemplate{
			Name:    "built-in agent",
			Type:    TargetAgent,
			Subject: "[${status}] Agent ${name}",
			Content: "Agent: ${name}\nHost: ${hostname}\nStatus: ${status} (was ${previous_status})\nIP: ${ip_addresses}\nOS: ${os}\nTime: ${time}\n${details}",
		}
	}
	return models.NotificationTemplate{
		Name:    "built-in monitor",
		Type:    TargetMonitor,
		Subject: "[${status}] ${name}",
		Content: "Monitor: ${name}\nURL: ${url}\nStatus: ${status} (was ${previous_status})\nResponse time: ${response_time}ms\nStatus code: ${status_code} (expected ${expected_status})\nError: ${error}\nTime: ${time}",
	}
}

// MonitorVars 构建监控检查后的模板变量
func MonitorVars(m *models.Monitor, previous string, statusCode int, errMsg string, at time.Time) map[string]string {
	if errMsg == "" {
		errMsg = "none"
	}
	return map[string]string{
		"name":            m.Name,
		"status":          m.Status,
		"previous_status": previous,
		"time":            at.Format(TimeLayout),
		"url":             m.URL,
		"response_time":   strconv.FormatInt(m.ResponseTime, 10),
		"status_code":     strconv.Itoa(statusCode),
		"expected_status": strconv.Itoa(m.ExpectedStatus),
		"error":           errMsg,
		"details":         errMsg,
	}
}

// AgentVars 构建客户端事件的模板变量
func AgentVars(a *models.Agent, previous, details string, at time.Time) map[string]string {
	return map[string]string{
		"name":            a.Name,
		"status":          a.Status,
		"previous_status": previous,
		"time":            at.Format(TimeLayout),
		"hostname":        a.Hostname,
		"ip_addresses":    strings.Join(a.IPAddresses, ", "),
		"os":              a.OS,
		"details":         details,
	}
}

// ThresholdDetails 生成 ${details} 的阈值描述
func ThresholdDetails(kind EventKind, value, threshold float64) string {
	var metric string
	switch kind {
	case EventCPUThreshold:
		metric = "CPU"
	case EventMemoryThreshold:
		metric = "Memory"
	case EventDiskThreshold:
		metric = "Disk"
	default:
		metric = string(kind)
	}
	return fmt.Sprintf("%s usage %.1f%% exceeds threshold %.1f%%", metric, value, threshold)
}
