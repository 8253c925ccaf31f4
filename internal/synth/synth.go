package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iabetor/jatts/internal/audio"
	"github.com/iabetor/jatts/internal/events"
	"github.com/iabetor/jatts/internal/history"
	"github.com/iabetor/jatts/internal/logger"
	"github.com/iabetor/jatts/internal/ruby"
	"github.com/iabetor/jatts/internal/tts"
)

// DefaultModel 是请求未指定 model 时使用的后端。
const DefaultModel = "parler"

var (
	// ErrEmptyPrompt 表示待合成文本为空。
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrPromptTooLong 表示待合成文本超过长度上限。
	ErrPromptTooLong = errors.New("prompt is too long")
)

// Synthesizer 按后端名称合成，由 tts.Registry 实现。
type Synthesizer interface {
	Synthesize(ctx context.Context, name, text, description string) (*tts.Audio, error)
	AcceptsRuby(name string) bool
}

// Annotator 为文本添加读音注释，由 ruby.Annotator 实现。
type Annotator interface {
	Annotate(text string) string
}

// Recorder 记录合成结果，由 history.Store 实现。
type Recorder interface {
	Record(ctx context.Context, e *history.Entry) error
}

// Notifier 发布合成完成事件，由 events.Publisher 实现。
type Notifier interface {
	Publish(ctx context.Context, ev events.SpeechGenerated, audio []byte) error
}

// Request 是一次合成请求。
type Request struct {
	Prompt      string
	Description string
	Model       string
}

// Result 是一次成功合成的结果。
type Result struct {
	ID          string
	Filename    string
	Model       string
	Prompt      string // 用户输入的原文
	Annotated   string // 实际送入后端的文本
	Description string
	Bytes       int64
	SampleRate  int
	Duration    time.Duration
	Elapsed     time.Duration
	CreatedAt   time.Time
}

// Config 组装 Service 所需的依赖。Annotator、History、Notifier 可为 nil。
type Config struct {
	Backends       Synthesizer
	Store          *audio.Store
	Annotator      Annotator
	History        Recorder
	Notifier       Notifier
	DefaultModel   string
	MaxPromptChars int
}

// Service 是合成调度器：校验、注音、选择后端、落盘、记录、通知。
type Service struct {
	backends       Synthesizer
	store          *audio.Store
	annotator      Annotator
	history        Recorder
	notifier       Notifier
	defaultModel   string
	maxPromptChars int
}

// New 创建合成服务。
func New(cfg Config) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	return &Service{
		backends:       cfg.Backends,
		store:          cfg.Store,
		annotator:      cfg.Annotator,
		history:        cfg.History,
		notifier:       cfg.Notifier,
		defaultModel:   cfg.DefaultModel,
		maxPromptChars: cfg.MaxPromptChars,
	}
}

// DefaultModel 返回默认后端名称。
func (s *Service) DefaultModel() string {
	return s.defaultModel
}

// Validate 校验请求并补全默认 model。
func (s *Service) Validate(req *Request) error {
	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if s.maxPromptChars > 0 {
		if n := utf8.RuneCountInString(req.Prompt); n > s.maxPromptChars {
			return fmt.Errorf("%w: %d characters (max %d)", ErrPromptTooLong, n, s.maxPromptChars)
		}
	}
	return nil
}

// prepare 返回送入后端的文本。只有能读取 <ruby> 标记的后端才添加读音注释，其余只做规范化。
func (s *Service) prepare(model, prompt string) string {
	text := ruby.Normalize(prompt)
	if s.annotator != nil && s.backends.AcceptsRuby(model) {
		text = s.annotator.Annotate(text)
	}
	return text
}

// Generate 执行一次完整的合成。记录与通知失败只记日志，不影响结果。
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	start := time.Now()
	annotated := s.prepare(req.Model, req.Prompt)
	filename := s.store.NewName()

	logger.Infof("[synth] 开始合成: model=%s, %d 个字符", req.Model, utf8.RuneCountInString(req.Prompt))

	out, err := s.backends.Synthesize(ctx, req.Model, annotated, req.Description)
	if err != nil {
		s.record(ctx, &history.Entry{
			Model:       req.Model,
			Prompt:      req.Prompt,
			Annotated:   annotated,
			Description: req.Description,
			Elapsed:     time.Since(start),
			Error:       err.Error(),
		})
		return nil, err
	}

	if _, err := s.store.Write(filename, out.Data); err != nil {
		return nil, fmt.Errorf("保存音频失败: %w", err)
	}

	res := &Result{
		ID:          uuid.NewString(),
		Filename:    filename,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Annotated:   annotated,
		Description: req.Description,
		Bytes:       int64(len(out.Data)),
		SampleRate:  out.SampleRate,
		Duration:    out.Duration,
		Elapsed:     time.Since(start),
		CreatedAt:   time.Now(),
	}

	s.record(ctx, &history.Entry{
		ID:          res.ID,
		Filename:    res.Filename,
		Model:       res.Model,
		Prompt:      res.Prompt,
		Annotated:   res.Annotated,
		Description: res.Description,
		Bytes:       res.Bytes,
		SampleRate:  res.SampleRate,
		Duration:    res.Duration,
		Elapsed:     res.Elapsed,
		CreatedAt:   res.CreatedAt,
	})
	s.publish(ctx, res, out.Data)

	logger.Infof("[synth] 合成完成: %s (model=%s, %d bytes, %v)",
		res.Filename, res.Model, res.Bytes, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (s *Service) record(ctx context.Context, e *history.Entry) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warnf("[synth] 写入合成记录失败: %v", err)
	}
}

func (s *Service) publish(ctx context.Context, res *Result, data []byte) {
	if s.notifier == nil {
		return
	}
	ev := events.SpeechGenerated{
		ID:         res.ID,
		Filename:   res.Filename,
		Model:      res.Model,
		Bytes:      res.Bytes,
		SampleRate: res.SampleRate,
		DurationMS: res.Duration.Milliseconds(),
		CreatedAt:  res.CreatedAt,
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), ev, data); err != nil {
		logger.Warnf("[synth] 发布合成事件失败: %v", err)
	}
}
