package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/iabetor/jatts/internal/logger"
)

// SpeechGenerated 在每次合成成功后发布。
type SpeechGenerated struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Model      string    `json:"model"`
	Bytes      int64     `json:"bytes"`
	SampleRate int       `json:"sample_rate"`
	DurationMS int64     `json:"duration_ms"`
	Bucket     string    `json:"bucket,omitempty"` // 音频已上传到的对象存储桶
	CreatedAt  time.Time `json:"created_at"`
}

// Publisher 把合成完成事件发布到 NATS，可选把音频上传到 JetStream 对象存储。
type Publisher struct {
	nc      *nats.Conn
	owned   bool
	subject string
	bucket  string
	store   nats.ObjectStore
}

// Connect 连接 NATS 服务器并创建 Publisher。bucket 为空时不上传音频。
func Connect(url, subject, bucket string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("jatts"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("[events] NATS 连接断开: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[events] NATS 已重连: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接 NATS 失败: %w", err)
	}

	p, err := New(nc, subject, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owned = true

	logger.Infof("[events] NATS 已连接: %s (subject=%s, bucket=%s)", nc.ConnectedUrl(), subject, bucket)
	return p, nil
}

// New 基于已有连接创建 Publisher。
func New(nc *nats.Conn, subject, bucket string) (*Publisher, error) {
	p := &Publisher{nc: nc, subject: subject, bucket: bucket}
	if bucket == "" {
		return p, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("获取 JetStream 上下文失败: %w", err)
	}
	store, err := objectStore(js, bucket)
	if err != nil {
		return nil, err
	}
	p.store = store
	return p, nil
}

// objectStore 先尝试创建对象存储桶，已存在时绑定。
func objectStore(js nats.JetStreamContext, bucket string) (nats.ObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Synthesized speech audio",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("创建对象存储桶 %s 失败: %w", bucket, err)
	}
	store, err = js.ObjectStore(bucket)
	if err != nil {
		return nil, fmt.Errorf("绑定对象存储桶 %s 失败: %w", bucket, err)
	}
	return store, nil
}

// Publish 上传音频（如已配置对象存储）并发布事件。
func (p *Publisher) Publish(ctx context.Context, ev SpeechGenerated, audio []byte) error {
	if p.store != nil && len(audio) > 0 {
		_, err := p.store.Put(&nats.ObjectMeta{
			Name:        ev.Filename,
			Description: ev.Model,
			Headers:     nats.Header{"Content-Type": []string{"audio/wav"}},
		}, bytes.NewReader(audio), nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("上传音频 %s 到对象存储桶 %s 失败: %w", ev.Filename, p.bucket, err)
		}
		ev.Bucket = p.bucket
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("发布事件到 %s 失败: %w", p.subject, err)
	}

	logger.Debugf("[events] 已发布 %s: %s", p.subject, ev.Filename)
	return nil
}

// Download 从对象存储读取音频，未配置对象存储时返回错误。
func (p *Publisher) Download(ctx context.Context, name string) ([]byte, error) {
	if p.store == nil {
		return nil, errors.New("未配置对象存储")
	}
	data, err := p.store.GetBytes(name, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("从对象存储桶 %s 读取 %s 失败: %w", p.bucket, name, err)
	}
	return data, nil
}

// Close 刷新待发送消息；连接由 Connect 创建时一并关闭。
func (p *Publisher) Close() error {
	if !p.owned {
		return p.nc.Flush()
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
