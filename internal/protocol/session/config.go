package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/edgerpc/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-connection timing and buffer defaults shared by the
// client and server engines.
type Config struct {
	// RequestTimeout bounds how long a client request stays pending.
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// IdleTimeout closes a server connection with no inbound bytes; zero disables it.
	IdleTimeout time.Duration
	// LingerTimeout bounds the drain after a close-after-flush.
	LingerTimeout  time.Duration
	ReplyChunkSize int
	ReadBufferSize int
	Limits         frame.Limits
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    0,
		LingerTimeout:  2 * time.Second,
		ReplyChunkSize: 64 * 1024,
		ReadBufferSize: 32 * 1024,
		Limits:         frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig. IdleTimeout stays as
// given because zero is meaningful.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.LingerTimeout <= 0 {
		c.LingerTimeout = def.LingerTimeout
	}
	if c.ReplyChunkSize <= 0 {
		c.ReplyChunkSize = def.ReplyChunkSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.Limits.MaxValueBytes <= 0 {
		c.Limits = def.Limits
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: negative idle timeout", ErrInvalidConfig)
	}
	if c.Backoff.MaxDelay > 0 && c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		return fmt.Errorf("%w: backoff max delay below initial delay", ErrInvalidConfig)
	}
	return nil
}
