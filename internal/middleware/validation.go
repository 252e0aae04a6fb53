package middleware

import (
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// MaxPayloadSize 最大 JSON payload 大小（2MB）
	MaxPayloadSize = 2 * 1024 * 1024
)

var (
	// TaskIDRegex TaskID 正则（字母数字连字符，1-128字符）
	TaskIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{1,128}$`)

	// ClientIDRegex WebSocket client_id 正则（字母数字下划线连字符，1-64字符）
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// PayloadSizeLimit Payload 大小限制中间件（不作用于 multipart 上传）
func PayloadSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.ContentType()
		if strings.HasPrefix(ct, "multipart/form-data") {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "请求体过大，最大允许 2MB",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ValidateTaskID 验证 Task ID
func ValidateTaskID(taskID string) bool {
	return TaskIDRegex.MatchString(taskID)
}

// ValidateClientID 验证 WebSocket client_id
func ValidateClientID(clientID string) bool {
	return ClientIDRegex.MatchString(clientID)
}

// ValidateFileExtension 校验文件扩展名是否在白名单内（不区分大小写）
func ValidateFileExtension(fileName string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// SanitizeString 清理字符串（去除危险字符）
func SanitizeString(s string) string {
	// 去除前后空格
	s = strings.TrimSpace(s)

	// 去除控制字符
	var builder strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateTaskIDParam Gin 中间件：验证路径参数中的 task_id
func ValidateTaskIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")
		if taskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "task_id 参数缺失",
			})
			c.Abort()
			return
		}

		if !ValidateTaskID(taskID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "task_id 格式无效，必须是1-128个字母、数字或连字符",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ValidateClientIDParam Gin 中间件：验证路径参数中的 client_id
func ValidateClientIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Param("client_id")
		if clientID == "" || !ValidateClientID(clientID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "client_id 格式无效，必须是1-64个字母、数字、下划线或连字符",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware CORS 中间件（前端跨端口开发环境需要）
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
