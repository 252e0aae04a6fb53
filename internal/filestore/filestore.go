// Package filestore 管理上传文件的本地存储。
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store 本地文件存储
type Store struct {
	dir string
}

// New 创建存储并确保目录存在
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir 存储根目录
func (s *Store) Dir() string { return s.dir }

// Save 保存上传内容，文件名为 <taskID><原扩展名>，返回存储路径。
func (s *Store) Save(taskID, originalName string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.dir, taskID+ext)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// Remove 删除存储文件；文件不存在视为成功（删除竞态是预期内的）
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// HashContent 计算内容的 sha256（用于上传去重）
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
