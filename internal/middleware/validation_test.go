package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTaskID(t *testing.T) {
	tests := []struct {
		name   string
		taskID string
		valid  bool
	}{
		{"standard id", "task-1700000000-a1b2c3d4e", true},
		{"plain alnum", "abc123", true},
		{"empty", "", false},
		{"underscore not allowed", "task_123", false},
		{"space", "task 123", false},
		{"path traversal", "../etc/passwd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateTaskID(tt.taskID))
		})
	}
}

func TestValidateClientID(t *testing.T) {
	assert.True(t, ValidateClientID("client-a1b2c3"))
	assert.True(t, ValidateClientID("web_ui_01"))
	assert.False(t, ValidateClientID(""))
	assert.False(t, ValidateClientID("has space"))
	assert.False(t, ValidateClientID("way-too-long-"+string(make([]byte, 64))))
}

func TestValidateFileExtension(t *testing.T) {
	allowed := []string{".txt", ".md"}

	assert.True(t, ValidateFileExtension("novel.txt", allowed))
	assert.True(t, ValidateFileExtension("README.MD", allowed), "扩展名不区分大小写")
	assert.False(t, ValidateFileExtension("image.png", allowed))
	assert.False(t, ValidateFileExtension("noext", allowed))
	assert.False(t, ValidateFileExtension("", allowed))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  "))
	assert.Equal(t, "abc", SanitizeString("a\x00b\x1fc"))
	assert.Equal(t, "中文.txt", SanitizeString("中文.txt"))
}
