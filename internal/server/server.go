package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/iabetor/jatts/internal/audio"
	"github.com/iabetor/jatts/internal/history"
	"github.com/iabetor/jatts/internal/logger"
	"github.com/iabetor/jatts/internal/synth"
	"github.com/iabetor/jatts/internal/tts"
)

//go:embed templates/*.html
var templateFS embed.FS

// shutdownTimeout 是优雅关闭时等待进行中请求的最长时间。
const shutdownTimeout = 10 * time.Second

// Backends 提供后端状态，由 tts.Registry 实现。
type Backends interface {
	Backends() []tts.Status
	ProbeAll(ctx context.Context)
}

// HistoryReader 读取合成记录，由 history.Store 实现。
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]*history.Entry, error)
	Get(ctx context.Context, filename string) (*history.Entry, error)
}

// Archive 在本地文件已被清理时提供音频副本，由 events.Publisher 实现。
type Archive interface {
	Download(ctx context.Context, name string) ([]byte, error)
}

// Config 组装 Server 所需的依赖与参数。History、Archive 可为 nil。
type Config struct {
	Synth    *synth.Service
	Backends Backends
	Store    *audio.Store
	History  HistoryReader
	Archive  Archive

	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit 为 /generate 每秒允许的请求数，0 表示不限流。
	RateLimit    float64
	RateBurst    int
	HistoryLimit int
	// MaxPromptChars 仅用于表单的 maxlength 提示，校验由 synth 完成。
	MaxPromptChars int
}

// Server 是 jatts 的 HTTP 服务。
type Server struct {
	cfg     Config
	engine  *gin.Engine
	limiter *rate.Limiter
}

// New 创建 HTTP 服务并注册路由。
func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	s := &Server{cfg: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	engine := gin.New()
	engine.Use(gin.CustomRecoveryWithWriter(io.Discard, recoverPanic), accessLog())
	engine.SetHTMLTemplate(template.Must(
		template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html"),
	))

	engine.GET("/", s.handleIndex)
	engine.POST("/generate", s.rateLimit(), s.handleGenerate)
	engine.GET("/audio/:filename", s.handleAudio)
	engine.GET("/history", s.handleHistory)
	engine.GET("/api/history", s.handleHistoryJSON)
	engine.GET("/api/history/:filename", s.handleHistoryEntry)
	engine.GET("/api/backends", s.handleBackends)
	engine.GET("/healthz", s.handleHealth)

	s.engine = engine
	return s
}

// Handler 返回 HTTP 处理器，便于测试与嵌入。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 启动监听，ctx 取消后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] HTTP 服务已启动: %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP 服务异常: %w", err)
	case <-ctx.Done():
	}

	logger.Info("[server] 正在关闭 HTTP 服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭 HTTP 服务失败: %w", err)
	}
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// Caser 有状态，不能跨 goroutine 共享
		"title": func(s string) string {
			return cases.Title(language.Und).String(s)
		},
		"bytes": func(n int64) string {
			if n < 0 {
				n = 0
			}
			return humanize.Bytes(uint64(n))
		},
		"ago": humanize.Time,
		"seconds": func(d time.Duration) string {
			return fmt.Sprintf("%.1fs", d.Seconds())
		},
	}
}
