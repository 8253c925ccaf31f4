package audio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/jatts/internal/logger"
)

const (
	namePrefix = "tts_"
	nameSuffix = ".wav"
	// tmpPattern 是 Write 临时文件的后缀，进程中途退出时可能残留
	tmpPattern = ".*.tmp"
)

var (
	// ErrNotFound 表示音频文件不存在。
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName 表示文件名不合法（包含路径或扩展名不对）。
	ErrInvalidName = errors.New("invalid audio file name")
)

// Store 管理合成结果文件：生成文件名、原子写入、按名称读取和过期清理。
type Store struct {
	dir       string
	retention time.Duration // 0 表示不清理
}

// NewStore 创建音频文件存储，目录不存在时自动创建。
func NewStore(dir string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建音频目录失败: %w", err)
	}
	return &Store{dir: dir, retention: retention}, nil
}

// Dir 返回存储目录。
func (s *Store) Dir() string {
	return s.dir
}

// NewName 生成新的文件名，格式为 tts_<32 位十六进制>.wav。
func (s *Store) NewName() string {
	id := uuid.New()
	return namePrefix + hex.EncodeToString(id[:]) + nameSuffix
}

// Path 校验文件名并返回完整路径。只接受不含路径分隔符的 .wav 文件名。
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") || !strings.HasSuffix(name, nameSuffix) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Write 先写临时文件再重命名，读取方不会看到写了一半的文件。
func (s *Store) Write(name string, data []byte) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, name+tmpPattern)
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("写入音频文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("关闭音频文件失败: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("重命名音频文件失败: %w", err)
	}

	logger.Debugf("[audio] 已写入 %s (%d bytes)", name, len(data))
	return path, nil
}

// Open 打开文件用于读取。文件名不合法或文件不存在时返回 ErrNotFound。
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("打开音频文件失败: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("读取文件信息失败: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Remove 删除指定文件，不存在时不报错。
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除音频文件失败: %w", err)
	}
	return nil
}

// Sweep 删除修改时间早于 now-retention 的 tts_*.wav 文件及残留的写入临时文件，返回删除数量。
// retention 为 0 时不做任何清理。
func (s *Store) Sweep(now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	var matches []string
	for _, pattern := range []string{namePrefix + "*" + nameSuffix, namePrefix + "*" + nameSuffix + tmpPattern} {
		m, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			return 0, fmt.Errorf("列出音频文件失败: %w", err)
		}
		matches = append(matches, m...)
	}

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[audio] 删除过期文件失败: %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Infof("[audio] 已清理 %d 个过期音频文件", removed)
	}
	return removed, nil
}

// SweepHook 在每次周期清理后调用，cutoff 为本次清理的截止时间。
type SweepHook func(ctx context.Context, cutoff time.Time)

// Run 按 interval 周期执行 Sweep 与 hooks，直到 ctx 取消。retention 为 0 时立即返回。
func (s *Store) Run(ctx context.Context, interval time.Duration, hooks ...SweepHook) error {
	if s.retention <= 0 || interval <= 0 {
		return nil
	}

	logger.Infof("[audio] 过期清理已启动: 保留 %v, 间隔 %v", s.retention, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := s.Sweep(now); err != nil {
				logger.Warnf("[audio] 清理失败: %v", err)
			}
			for _, hook := range hooks {
				hook(ctx, now.Add(-s.retention))
			}
		}
	}
}
