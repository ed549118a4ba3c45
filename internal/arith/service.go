package arith

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/edgerpc/internal/server"
	"github.com/rs/zerolog/log"
)

const (
	MethodSubtract = "subtract"
	MethodSum      = "sum"
	MethodEcho     = "echo"
	MethodUpdate   = "update"
)

var (
	errOperandCount = errors.New("expected two operands")
	errOperandType  = errors.New("operands must be numbers")
)

// Update is one received update notification.
type Update struct {
	Conn       string
	Params     any
	ReceivedAt time.Time
}

// Service implements server.Handler.
type Service struct {
	mu      sync.Mutex
	updates []Update
	limit   int
}

func NewService() *Service {
	return &Service{limit: 64}
}

func (s *Service) ReceiveRequest(req *server.Request) {
	var err error
	switch req.Method {
	case MethodSubtract, "-":
		err = s.binary(req, "minuend", "subtrahend", subtract)
	case MethodSum, "+":
		err = s.binary(req, "augend", "addend", sum)
	case MethodEcho:
		err = req.ReplyResult(req.Params)
	default:
		err = req.ReplyMethodNotFound("")
	}
	if err != nil && !errors.Is(err, server.ErrConnClosed) {
		log.Warn().Str("conn", req.Conn.ID()).Str("method", req.Method).Err(err).Msg("arith reply failed")
	}
}

func (s *Service) ReceiveNotification(n server.Notification) {
	if n.Method != MethodUpdate {
		log.Debug().Str("conn", n.Conn.ID()).Str("method", n.Method).Msg("arith ignored notification")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, Update{
		Conn:       n.Conn.ID(),
		Params:     n.Params,
		ReceivedAt: time.Now(),
	})
	if len(s.updates) > s.limit {
		s.updates = s.updates[len(s.updates)-s.limit:]
	}
}

// Updates returns the most recent update notifications, oldest first.
func (s *Service) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, len(s.updates))
	copy(out, s.updates)
	return out
}

func (s *Service) binary(req *server.Request, firstKey, secondKey string, op func(a, b json.Number) (any, error)) error {
	a, b, err := operands(req.Params, firstKey, secondKey)
	if err != nil {
		return req.ReplyInvalidParams(err.Error())
	}
	result, err := op(a, b)
	if err != nil {
		return req.ReplyInvalidParams(err.Error())
	}
	return req.ReplyResult(result)
}

// operands accepts [a, b] or {firstKey: a, secondKey: b}.
func operands(params any, firstKey, secondKey string) (json.Number, json.Number, error) {
	var x, y any
	switch p := params.(type) {
	case []any:
		if len(p) != 2 {
			return "", "", errOperandCount
		}
		x, y = p[0], p[1]
	case map[string]any:
		var ok1, ok2 bool
		x, ok1 = p[firstKey]
		y, ok2 = p[secondKey]
		if !ok1 || !ok2 {
			return "", "", fmt.Errorf("expected %q and %q", firstKey, secondKey)
		}
	default:
		return "", "", errOperandCount
	}
	a, ok1 := x.(json.Number)
	b, ok2 := y.(json.Number)
	if !ok1 || !ok2 {
		return "", "", errOperandType
	}
	return a, b, nil
}

func subtract(a, b json.Number) (any, error) {
	return apply(a, b, subInt, func(x, y float64) float64 { return x - y })
}

func sum(a, b json.Number) (any, error) {
	return apply(a, b, addInt, func(x, y float64) float64 { return x + y })
}

// addInt reports false when x+y does not fit in an int64.
func addInt(x, y int64) (int64, bool) {
	r := x + y
	if (y > 0 && r < x) || (y < 0 && r > x) {
		return 0, false
	}
	return r, true
}

// subInt reports false when x-y does not fit in an int64.
func subInt(x, y int64) (int64, bool) {
	r := x - y
	if (y > 0 && r > x) || (y < 0 && r < x) {
		return 0, false
	}
	return r, true
}

// apply keeps integer arithmetic when both operands are integers and the
// result fits. Anything else is computed in float64.
func apply(a, b json.Number, ints func(x, y int64) (int64, bool), floats func(x, y float64) float64) (any, error) {
	x, errX := a.Int64()
	y, errY := b.Int64()
	if errX == nil && errY == nil {
		if r, ok := ints(x, y); ok {
			return r, nil
		}
	}
	fx, err := a.Float64()
	if err != nil {
		return nil, errOperandType
	}
	fy, err := b.Float64()
	if err != nil {
		return nil, errOperandType
	}
	return floats(fx, fy), nil
}
