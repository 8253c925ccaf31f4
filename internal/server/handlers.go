package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iabetor/jatts/internal/audio"
	"github.com/iabetor/jatts/internal/history"
	"github.com/iabetor/jatts/internal/logger"
	"github.com/iabetor/jatts/internal/synth"
	"github.com/iabetor/jatts/internal/tts"
)

// defaultPrompt 是表单中预填的示例文本。
const defaultPrompt = "こんにちは、今日はどのようにお過ごしですか？"

type indexPage struct {
	Backends       []tts.Status
	Selected       tts.Status
	Prompt         string
	MaxPromptChars int
}

func (s *Server) handleIndex(c *gin.Context) {
	backends := s.cfg.Backends.Backends()
	page := indexPage{
		Backends: backends,
		Selected: selectBackend(backends, s.cfg.Synth.DefaultModel()),
		Prompt:   defaultPrompt,
	}
	// 非正数表示不限长度
	if s.cfg.MaxPromptChars > 0 {
		page.MaxPromptChars = s.cfg.MaxPromptChars
	}
	c.HTML(http.StatusOK, "index.html", page)
}

// selectBackend 返回表单初始选中的后端：优先默认后端，其次第一个可用后端。
func selectBackend(backends []tts.Status, preferred string) tts.Status {
	for _, b := range backends {
		if b.Name == preferred && b.Available {
			return b
		}
	}
	for _, b := range backends {
		if b.Available {
			return b
		}
	}
	if len(backends) > 0 {
		return backends[0]
	}
	return tts.Status{}
}

func (s *Server) handleGenerate(c *gin.Context) {
	req := synth.Request{
		Prompt:      c.PostForm("prompt"),
		Description: c.PostForm("description"),
		Model:       c.PostForm("model"),
	}

	res, err := s.cfg.Synth.Generate(c.Request.Context(), req)
	if err != nil {
		status := errorStatus(err)
		logger.Warnf("[server] 合成失败 (model=%s, status=%d): %v", req.Model, status, err)
		s.renderError(c, status, err.Error())
		return
	}
	c.HTML(http.StatusOK, "result.html", res)
}

// errorStatus 把合成错误映射为 HTTP 状态码。
func errorStatus(err error) int {
	switch {
	case errors.Is(err, synth.ErrEmptyPrompt),
		errors.Is(err, synth.ErrPromptTooLong),
		errors.Is(err, tts.ErrUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) renderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{"Message": message})
}

func (s *Server) handleAudio(c *gin.Context) {
	name := c.Param("filename")

	f, info, err := s.cfg.Store.Open(name)
	if err == nil {
		defer f.Close()
		c.Header("Content-Type", "audio/wav")
		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
		return
	}
	if !errors.Is(err, audio.ErrNotFound) {
		logger.Errorf("[server] 读取音频 %s 失败: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	// 本地已清理时尝试从对象存储取回
	if s.cfg.Archive != nil {
		if _, perr := s.cfg.Store.Path(name); perr == nil {
			data, derr := s.cfg.Archive.Download(c.Request.Context(), name)
			if derr == nil {
				logger.Debugf("[server] 从对象存储取回 %s", name)
				c.Data(http.StatusOK, "audio/wav", data)
				return
			}
			logger.Debugf("[server] 对象存储中无 %s: %v", name, derr)
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is disabled"})
		return
	}
	entries, err := s.cfg.History.Recent(c.Request.Context(), s.cfg.HistoryLimit)
	if err != nil {
		logger.Errorf("[server] 读取合成记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
		return
	}
	c.HTML(http.StatusOK, "history.html", gin.H{"Entries": entries})
}

type historyItem struct {
	ID          string `json:"id"`
	Filename    string `json:"filename,omitempty"`
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	Annotated   string `json:"annotated"`
	Description string `json:"description"`
	Bytes       int64  `json:"bytes"`
	SampleRate  int    `json:"sample_rate"`
	DurationMS  int64  `json:"duration_ms"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleHistoryJSON(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is disabled"})
		return
	}
	entries, err := s.cfg.History.Recent(c.Request.Context(), s.cfg.HistoryLimit)
	if err != nil {
		logger.Errorf("[server] 读取合成记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toHistoryItem(e))
	}
	c.JSON(http.StatusOK, gin.H{"entries": items})
}

// handleHistoryEntry 按音频文件名返回单条合成记录。
func (s *Server) handleHistoryEntry(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is disabled"})
		return
	}
	name := c.Param("filename")
	e, err := s.cfg.History.Get(c.Request.Context(), name)
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	if err != nil {
		logger.Errorf("[server] 查询合成记录 %s 失败: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
		return
	}
	c.JSON(http.StatusOK, toHistoryItem(e))
}

func toHistoryItem(e *history.Entry) historyItem {
	return historyItem{
		ID:          e.ID,
		Filename:    e.Filename,
		Model:       e.Model,
		Prompt:      e.Prompt,
		Annotated:   e.Annotated,
		Description: e.Description,
		Bytes:       e.Bytes,
		SampleRate:  e.SampleRate,
		DurationMS:  e.Duration.Milliseconds(),
		ElapsedMS:   e.Elapsed.Milliseconds(),
		Error:       e.Error,
		CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// handleBackends 重新探测远端后端后返回全部状态。
func (s *Server) handleBackends(c *gin.Context) {
	s.cfg.Backends.ProbeAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"default":  s.cfg.Synth.DefaultModel(),
		"backends": s.cfg.Backends.Backends(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
