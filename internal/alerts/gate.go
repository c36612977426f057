package alerts

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"apr-signal-bot/internal/strategy"
)

const defaultCooldown = 30 * time.Minute

// Gate rate-limits entry alerts per symbol, strategy and signal class.
// Exit alerts always pass; suppressing a close signal is worse than a
// noisy channel.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent map[string]time.Time
	log      *zap.Logger
	now      func() time.Time
}

func NewGate(cooldown time.Duration, log *zap.Logger) *Gate {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		log:      log,
		now:      time.Now,
	}
}

// Allow reports whether the opportunity may be alerted now and, when it
// may, records the send time. Entry and exit signals for the same symbol
// and strategy cool down independently.
func (g *Gate) Allow(opp strategy.Opportunity) bool {
	if opp.Action.IsExit() {
		return true
	}
	key := cooldownKey(opp)
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.lastSent[key]; ok && now.Sub(last) < g.cooldown {
		g.log.Debug("alert suppressed by cooldown",
			zap.String("key", key),
			zap.Duration("remaining", g.cooldown-now.Sub(last)))
		return false
	}
	g.lastSent[key] = now
	return true
}

func cooldownKey(opp strategy.Opportunity) string {
	class := "entry"
	if opp.Action.IsExit() {
		class = "exit"
	}
	return fmt.Sprintf("%s|%s|%s", opp.Symbol, opp.Kind, class)
}
