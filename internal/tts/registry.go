package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iabetor/jatts/internal/logger"
)

// Backend 是注册到 Registry 的一个合成后端及其表单展示信息。
type Backend struct {
	Name               string
	Label              string // 下拉框中的显示名
	Info               string // 选中后显示的说明
	Placeholder        string // 描述输入框的 placeholder
	DefaultDescription string // 描述输入框的默认值
	Ruby               bool   // 模型能读取 <ruby> 注音标记，否则只接收规范化后的纯文本
	Engine             Engine
}

// Status 是后端的当前状态，供页面与 /api/backends 使用。
type Status struct {
	Name               string `json:"name"`
	Label              string `json:"label"`
	Info               string `json:"info"`
	Placeholder        string `json:"placeholder"`
	DefaultDescription string `json:"default_description"`
	Ruby               bool   `json:"ruby"`
	Available          bool   `json:"available"`
	Reason             string `json:"reason,omitempty"`
}

// UnavailableError 表示请求的模型未注册或当前不可用。
type UnavailableError struct {
	Name string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("Model '%s' not available or not supported", e.Name)
}

// Is 使 errors.Is(err, ErrUnavailable) 成立。
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

type entry struct {
	Backend
	available bool
	reason    string
}

// Registry 按注册顺序管理所有后端。
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry 创建后端注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register 注册一个后端，同名后端会被替换。
// 实现了 Prober 的后端在首次 ProbeAll 之前视为不可用。
func (r *Registry) Register(b Backend) {
	fillMeta(&b)
	e := &entry{Backend: b, available: true}
	if _, ok := b.Engine.(Prober); ok {
		e.available = false
		e.reason = "尚未探测"
	}
	r.put(e)
	logger.Infof("[tts] 已注册后端: %s", b.Name)
}

// RegisterUnavailable 注册一个初始化失败的后端，使其在表单中显示为不可用。
func (r *Registry) RegisterUnavailable(b Backend, reason string) {
	fillMeta(&b)
	b.Engine = nil
	r.put(&entry{Backend: b, reason: reason})
	logger.Warnf("[tts] 后端 %s 不可用: %s", b.Name, reason)
}

func (r *Registry) put(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Name]; !ok {
		r.order = append(r.order, e.Name)
	}
	r.entries[e.Name] = e
}

// Get 返回指定名称的可用引擎。
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || !e.available || e.Engine == nil {
		return nil, false
	}
	return e.Engine, true
}

// AcceptsRuby 返回指定后端是否能读取 <ruby> 注音标记。未知后端返回 false。
func (r *Registry) AcceptsRuby(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.Ruby
}

// Backends 按显示顺序返回所有后端的状态。
func (r *Registry) Backends() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, Status{
			Name:               e.Name,
			Label:              e.Label,
			Info:               e.Info,
			Placeholder:        e.Placeholder,
			DefaultDescription: e.DefaultDescription,
			Ruby:               e.Ruby,
			Available:          e.available,
			Reason:             e.reason,
		})
	}
	return out
}

// Synthesize 使用指定后端合成。未知或不可用的后端返回 *UnavailableError。
func (r *Registry) Synthesize(ctx context.Context, name, text, description string) (*Audio, error) {
	engine, ok := r.Get(name)
	if !ok {
		return nil, &UnavailableError{Name: name}
	}

	start := time.Now()
	out, err := engine.Synthesize(ctx, text, description)
	if err != nil {
		logger.Warnf("[tts] 后端 %s 合成失败: %v", name, err)
		return nil, err
	}
	if out == nil || len(out.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	logger.Infof("[tts] 后端 %s 合成完成，耗时 %v", name, time.Since(start).Round(time.Millisecond))
	return out, nil
}

// ProbeAll 并发探测所有实现了 Prober 的后端并刷新可用状态。
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.RLock()
	targets := make(map[string]Prober)
	for name, e := range r.entries {
		if p, ok := e.Engine.(Prober); ok {
			targets[name] = p
		}
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for name, p := range targets {
		g.Go(func() error {
			err := p.Probe(ctx)
			r.setAvailability(name, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Registry) setAvailability(name string, probeErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return
	}
	if probeErr != nil {
		if e.available || e.reason != probeErr.Error() {
			logger.Warnf("[tts] 后端 %s 不可用: %v", name, probeErr)
		}
		e.available = false
		e.reason = probeErr.Error()
		return
	}
	if !e.available {
		logger.Infof("[tts] 后端 %s 已就绪", name)
	}
	e.available = true
	e.reason = ""
}

// Close 释放所有实现了 Closer 的后端。
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, name := range r.order {
		if c, ok := r.entries[name].Engine.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭后端 %s 失败: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
