package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/edgerpc/internal/client"
	"github.com/danmuck/edgerpc/internal/config"
	"github.com/danmuck/edgerpc/internal/protocol"
	"github.com/danmuck/edgerpc/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrReconnectExhausted = errors.New("rpcclient: reconnect attempts exhausted")

type stats struct {
	OK         int
	RPCErrors  int
	Failures   int
	Reconnects int
}

type logHooks struct{}

func (logHooks) Ready(c *client.Client) {
	log.Info().Str("network", c.Network()).Str("addr", c.Address()).Msg("connected")
}

func (logHooks) ConnectionFailed(c *client.Client, err error) {
	log.Warn().Str("addr", c.Address()).Err(err).Msg("connect failed")
}

func (logHooks) ConnectionTerminated(c *client.Client, err error) {
	log.Warn().Str("addr", c.Address()).AnErr("cause", err).Msg("connection terminated")
}

func (logHooks) ParsingError(c *client.Client, raw []byte, err error) {
	log.Warn().Str("addr", c.Address()).Int("bytes", len(raw)).Err(err).Msg("unparseable response")
}

// run issues subtract calls every cfg.Interval, reconnecting with backoff
// whenever the link drops. token only matters for the ws network.
func run(ctx context.Context, cfg config.ClientConfig, token string) (stats, error) {
	var st stats
	c, err := client.New(client.Config{
		Network: cfg.Network,
		Address: cfg.Address,
		Session: cfg.Session,
		Hooks:   logHooks{},
		Token:   token,
	})
	if err != nil {
		return st, err
	}
	defer c.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := session.NewBackoff(cfg.Session.Backoff, rng)

	for i := 0; cfg.Count == 0 || i < cfg.Count; {
		if !c.Connected() {
			if err := connect(ctx, c, backoff, cfg.MaxReconnectAttempts); err != nil {
				return st, err
			}
			if i > 0 {
				st.Reconnects++
			}
		}

		a, b := rng.Intn(100), rng.Intn(100)
		var diff int
		err := c.Call(ctx, "subtract", []int{a, b}, &diff)
		var rpcErr *protocol.ErrorObject
		switch {
		case err == nil:
			st.OK++
			log.Info().Int("a", a).Int("b", b).Int("result", diff).Msg("subtract")
		case errors.As(err, &rpcErr):
			st.RPCErrors++
			log.Warn().Int("code", rpcErr.Code).Str("message", rpcErr.Message).Msg("subtract rejected")
		case ctx.Err() != nil:
			return st, ctx.Err()
		default:
			st.Failures++
			log.Warn().Err(err).Msg("subtract failed")
		}
		i++

		if cfg.Count != 0 && i >= cfg.Count {
			break
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
	return st, nil
}

func connect(ctx context.Context, c *client.Client, backoff *session.Backoff, maxAttempts int) error {
	for {
		err := c.Connect(ctx)
		if err == nil {
			backoff.Reset()
			return nil
		}
		delay := backoff.Next()
		if maxAttempts > 0 && backoff.Attempt() >= maxAttempts {
			return fmt.Errorf("%w: %d attempts: %v", ErrReconnectExhausted, backoff.Attempt(), err)
		}
		log.Debug().Int("attempt", backoff.Attempt()).Dur("delay", delay).Msg("reconnect backoff")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
