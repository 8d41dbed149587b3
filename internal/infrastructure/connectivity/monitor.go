package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/mrops-br/offline-catalog/internal/domain"
	"github.com/robfig/cron/v3"
)

// TopicChanged carries a single bool: the new reachability state
const TopicChanged = "connectivity:changed"

var _ domain.ConnectivityMonitor = (*Monitor)(nil)

var ErrUnknownSubscription = errors.New("unknown connectivity subscription")

// Prober performs one reachability observation
type Prober interface {
	Probe(ctx context.Context) bool
}

// DialProber reports the network as reachable when a TCP connection to
// Address can be opened within Timeout.
type DialProber struct {
	Address string
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Monitor tracks the process-wide connectivity state and notifies
// subscribers when it changes. It starts out assuming the network is up.
type Monitor struct {
	mu        sync.RWMutex
	connected bool

	// publishMu keeps state updates and their deliveries in the same order
	publishMu sync.Mutex
	bus       EventBus.Bus

	// handlers are fanned out from a single bus subscription; the bus
	// matches handlers by code pointer, which method values share
	subsMu   sync.Mutex
	nextSub  domain.Subscription
	handlers map[domain.Subscription]func(connected bool)

	prober   Prober
	interval time.Duration
	sched    *cron.Cron
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// NewMonitor creates a monitor. prober may be nil when observations are fed
// through Observe only.
func NewMonitor(prober Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	m := &Monitor{
		connected: true,
		bus:       EventBus.New(),
		handlers:  make(map[domain.Subscription]func(connected bool)),
		prober:    prober,
		interval:  interval,
		logger:    logger,
	}
	// Only fails for a non-func handler
	_ = m.bus.SubscribeAsync(TopicChanged, m.dispatch, true)
	return m
}

// IsConnected returns the last observed state
func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Observe records an observation and publishes it if the state changed
func (m *Monitor) Observe(connected bool) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	changed := m.connected != connected
	m.connected = connected
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("Connectivity changed", slog.Bool("connected", connected))
	m.bus.Publish(TopicChanged, connected)
}

// Subscribe registers handler for state transitions. Deliveries happen off
// the observer's goroutine, one at a time, in transition order. The
// returned Subscription removes exactly this registration.
func (m *Monitor) Subscribe(handler func(connected bool)) (domain.Subscription, error) {
	if handler == nil {
		return 0, fmt.Errorf("connectivity handler cannot be nil")
	}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.nextSub++
	m.handlers[m.nextSub] = handler
	return m.nextSub, nil
}

func (m *Monitor) Unsubscribe(sub domain.Subscription) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.handlers[sub]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, sub)
	}
	delete(m.handlers, sub)
	return nil
}

func (m *Monitor) dispatch(connected bool) {
	m.subsMu.Lock()
	subs := make([]domain.Subscription, 0, len(m.handlers))
	for sub := range m.handlers {
		subs = append(subs, sub)
	}
	m.subsMu.Unlock()
	slices.Sort(subs)

	for _, sub := range subs {
		m.subsMu.Lock()
		handler, ok := m.handlers[sub]
		m.subsMu.Unlock()
		if ok {
			handler(connected)
		}
	}
}

// Wait blocks until every queued delivery has run
func (m *Monitor) Wait() {
	m.bus.WaitAsync()
}

// Start begins probing on a background schedule
func (m *Monitor) Start(ctx context.Context) error {
	if m.prober == nil {
		return nil
	}
	if m.sched != nil {
		return fmt.Errorf("connectivity monitor already started")
	}

	probeCtx, cancel := context.WithCancel(ctx)
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(m.logger.Handler(), slog.LevelDebug))
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)))

	_, err := sched.AddFunc(fmt.Sprintf("@every %s", m.interval), func() {
		m.Observe(m.prober.Probe(probeCtx))
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule connectivity probe: %w", err)
	}

	m.sched = sched
	m.cancel = cancel
	sched.Start()

	m.logger.Info("Connectivity probe started", slog.Duration("interval", m.interval))
	return nil
}

// Stop halts probing, waits for a running probe and drains pending deliveries
func (m *Monitor) Stop() {
	if m.sched != nil {
		<-m.sched.Stop().Done()
		m.cancel()
		m.sched = nil
	}
	m.bus.WaitAsync()
}
