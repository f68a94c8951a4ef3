package stream

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vantage/internal/config"
	"vantage/internal/domain"
)

const (
	pollFetchTimeout      = 8 * time.Second
	pollConcurrency       = 4
	immediateQuoteTimeout = 5 * time.Second

	// minWebsocketPoll floors the poll cadence while real-time sources
	// run; polling stays on as a safety net, just slower
	minWebsocketPoll = 2 * time.Second

	// sourceOpBudget bounds how long one source may take to connect or
	// disconnect before the streamer moves on
	sourceOpBudget = 5 * time.Second
)

// Streamer schedules price delivery for subscribed tickers. Two poll loops
// run side by side: the normal loop covers priority 1 subscriptions, the
// priority loop everything above. In scalping mode real-time sources are
// connected and mirror the subscription set, with polling slowed to a
// safety-net cadence.
type Streamer struct {
	registry *Registry
	hub      *Hub
	settings config.StreamSettings
	log      zerolog.Logger

	// lifecycleMu serialises Start, Stop and mode changes end to end so
	// the stop-flip-restart sequence is atomic
	lifecycleMu sync.Mutex

	// mu guards the fields below; critical sections stay short and never
	// wait on goroutines or the network
	mu      sync.RWMutex
	mode    TradingMode
	subs    map[domain.Ticker]*SubscriptionState
	polls   *pollRun
	started bool
}

type pollRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamer creates a streamer in the settings' default mode
func NewStreamer(registry *Registry, hub *Hub, settings config.StreamSettings, log zerolog.Logger) *Streamer {
	mode := TradingMode(settings.DefaultMode)
	if !mode.Valid() {
		mode = ModeLongTerm
	}
	return &Streamer{
		registry: registry,
		hub:      hub,
		settings: settings,
		log:      log.With().Str("component", "streamer").Logger(),
		mode:     mode,
		subs:     make(map[domain.Ticker]*SubscriptionState),
	}
}

// Hub exposes the fan-out hub so the server can register WebSocket clients
func (s *Streamer) Hub() *Hub { return s.hub }

// Mode returns the current trading mode
func (s *Streamer) Mode() TradingMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Start connects real-time sources when the mode wants them and launches
// the poll loops
func (s *Streamer) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	mode := s.mode
	s.mu.Unlock()

	if mode.UsesWebsocket() {
		s.activateRealtime(ctx)
	}
	s.startPolls()

	s.log.Info().Str("mode", string(mode)).Msg("Streamer started")
	return nil
}

// Stop halts the poll loops, disconnects every connected source within a
// bounded budget and closes the client hub
func (s *Streamer) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.stopPolls()

	var g errgroup.Group
	for _, src := range s.registry.RealtimeSources() {
		if !src.Connected() {
			continue
		}
		g.Go(func() error {
			budgetCtx, cancel := context.WithTimeout(ctx, sourceOpBudget)
			defer cancel()
			if err := src.Disconnect(budgetCtx); err != nil {
				s.log.Warn().Err(err).Str("source", src.Name()).Msg("Source disconnect failed")
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	s.hub.Close()
	s.log.Info().Msg("Streamer stopped")
	return err
}

// Subscribe records the desired state for a ticker, fires a one-shot
// immediate quote and, when real-time sources are active, mirrors the
// subscription to them. Subscribing an already tracked ticker updates its
// priority and hint in place.
func (s *Streamer) Subscribe(ctx context.Context, ticker domain.Ticker, priority int, sourceHint string) (*SubscriptionState, error) {
	if priority < PriorityNormal || priority > PriorityUrgent {
		return nil, domain.NewValidationError("priority", "must be between %d and %d, got %d", PriorityNormal, PriorityUrgent, priority)
	}
	if sourceHint != "" {
		src, ok := s.registry.Get(sourceHint)
		if !ok {
			return nil, domain.NewValidationError("source", "unknown source %q", sourceHint)
		}
		if !src.Realtime() {
			return nil, domain.NewValidationError("source", "%q is not a real-time source", sourceHint)
		}
	}

	s.mu.Lock()
	sub, exists := s.subs[ticker]
	if exists {
		sub.Priority = priority
		sub.SourceHint = sourceHint
	} else {
		sub = &SubscriptionState{
			Ticker:       ticker,
			Priority:     priority,
			SourceHint:   sourceHint,
			SubscribedAt: time.Now().UTC(),
		}
		s.subs[ticker] = sub
	}
	state := *sub
	realtimeActive := s.started && s.mode.UsesWebsocket()
	s.mu.Unlock()

	if defaultSrc := s.registry.Default(); defaultSrc != nil {
		_ = defaultSrc.Subscribe(ctx, ticker, s.broadcastCallback(), nil)
	}

	go s.emitImmediateQuote(ticker)

	if realtimeActive {
		s.mirrorToRealtime(ctx, ticker, sourceHint)
	}

	s.log.Info().
		Str("ticker", ticker.String()).
		Int("priority", priority).
		Msg("Ticker subscribed")
	return &state, nil
}

// Unsubscribe stops tracking a ticker
func (s *Streamer) Unsubscribe(ctx context.Context, ticker domain.Ticker) error {
	s.mu.Lock()
	if _, exists := s.subs[ticker]; !exists {
		s.mu.Unlock()
		return &domain.NotFoundError{Entity: "subscription", ID: ticker.String()}
	}
	delete(s.subs, ticker)
	realtimeActive := s.started && s.mode.UsesWebsocket()
	s.mu.Unlock()

	if defaultSrc := s.registry.Default(); defaultSrc != nil {
		_ = defaultSrc.Unsubscribe(ctx, ticker)
	}
	if realtimeActive {
		for _, src := range s.registry.RealtimeSources() {
			if !src.Connected() {
				continue
			}
			if err := src.Unsubscribe(ctx, ticker); err != nil {
				s.log.Warn().Err(err).Str("source", src.Name()).Str("ticker", ticker.String()).Msg("Real-time unsubscribe failed")
			}
		}
	}

	s.log.Info().Str("ticker", ticker.String()).Msg("Ticker unsubscribed")
	return nil
}

// SetTradingMode switches poll cadences and real-time activation. The
// whole sequence runs under the lifecycle lock: stop polls, flip mode,
// adjust real-time sources, restart polls.
func (s *Streamer) SetTradingMode(ctx context.Context, mode TradingMode) error {
	if !mode.Valid() {
		return domain.NewValidationError("mode", "must be one of long_term, swing, scalping, got %q", string(mode))
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.RLock()
	current := s.mode
	started := s.started
	s.mu.RUnlock()

	if mode == current {
		return nil
	}
	if !started {
		s.mu.Lock()
		s.mode = mode
		s.mu.Unlock()
		return nil
	}

	s.stopPolls()

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	switch {
	case mode.UsesWebsocket() && !current.UsesWebsocket():
		s.activateRealtime(ctx)
	case !mode.UsesWebsocket() && current.UsesWebsocket():
		s.deactivateRealtime(ctx)
	}

	s.startPolls()

	s.log.Info().
		Str("from", string(current)).
		Str("to", string(mode)).
		Msg("Trading mode changed")
	return nil
}

// BroadcastToTicker fans a quote out to the clients subscribed to its ticker
func (s *Streamer) BroadcastToTicker(ticker domain.Ticker, quote *domain.Quote) {
	if quote == nil {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker.String()).Msg("Failed to encode quote")
		return
	}
	s.hub.Broadcast(ticker, payload)
	s.log.Debug().Str("ticker", ticker.String()).Str("source", quote.Source).Msg("Quote broadcast")
}

// Status reports the streamer's current view
func (s *Streamer) Status() Status {
	s.mu.RLock()
	mode := s.mode
	started := s.started
	subs := make([]SubscriptionState, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, *sub)
	}
	s.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].Ticker < subs[j].Ticker })

	normal, priority := s.intervalsFor(mode)
	sources := make([]SourceStatus, 0)
	for _, src := range s.registry.All() {
		sources = append(sources, SourceStatus{
			Name:      src.Name(),
			Realtime:  src.Realtime(),
			Available: src.Available(),
			Connected: src.Connected(),
		})
	}

	return Status{
		Mode:            mode,
		PollSeconds:     int(normal.Seconds()),
		PrioritySeconds: int(priority.Seconds()),
		RealtimeActive:  started && mode.UsesWebsocket(),
		Sources:         sources,
		Subscriptions:   subs,
		Clients:         s.hub.ClientCount(),
	}
}

// intervalsFor resolves the poll cadences for a mode, applying the
// websocket-mode floor
func (s *Streamer) intervalsFor(mode TradingMode) (time.Duration, time.Duration) {
	var m config.ModeIntervals
	switch mode {
	case ModeSwing:
		m = s.settings.Swing
	case ModeScalping:
		m = s.settings.Scalping
	default:
		m = s.settings.LongTerm
	}

	normal := time.Duration(m.PollSeconds) * time.Second
	priority := time.Duration(m.PrioritySeconds) * time.Second
	if normal <= 0 {
		normal = time.Minute
	}
	if priority <= 0 {
		priority = 30 * time.Second
	}
	if mode.UsesWebsocket() {
		if normal < minWebsocketPoll {
			normal = minWebsocketPoll
		}
		if priority < minWebsocketPoll {
			priority = minWebsocketPoll
		}
	}
	return normal, priority
}

func (s *Streamer) startPolls() {
	s.mu.RLock()
	mode := s.mode
	s.mu.RUnlock()

	normal, priority := s.intervalsFor(mode)
	ctx, cancel := context.WithCancel(context.Background())
	run := &pollRun{cancel: cancel, done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pollLoop(ctx, &wg, "normal", normal, func(p int) bool { return p == PriorityNormal })
	go s.pollLoop(ctx, &wg, "priority", priority, func(p int) bool { return p >= PriorityHigh })
	go func() {
		wg.Wait()
		close(run.done)
	}()

	s.mu.Lock()
	s.polls = run
	s.mu.Unlock()
}

func (s *Streamer) stopPolls() {
	s.mu.Lock()
	run := s.polls
	s.polls = nil
	s.mu.Unlock()

	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

func (s *Streamer) pollLoop(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, match func(priority int) bool) {
	defer wg.Done()

	s.log.Debug().Str("loop", name).Dur("interval", interval).Msg("Poll loop started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Str("loop", name).Msg("Poll loop stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx, match)
		}
	}
}

// pollOnce fetches the current price for every matching ticker with
// bounded concurrency. A failed ticker never stops its siblings.
func (s *Streamer) pollOnce(ctx context.Context, match func(priority int) bool) {
	s.mu.RLock()
	tickers := make([]domain.Ticker, 0, len(s.subs))
	for t, sub := range s.subs {
		if match(sub.Priority) {
			tickers = append(tickers, t)
		}
	}
	s.mu.RUnlock()

	if len(tickers) == 0 {
		return
	}
	source := s.registry.Default()
	if source == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, t := range tickers {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, pollFetchTimeout)
			defer cancel()
			quote, err := source.CurrentPrice(fetchCtx, t)
			if err != nil {
				s.log.Debug().Err(err).Str("ticker", t.String()).Msg("Poll fetch failed")
				return nil
			}
			s.BroadcastToTicker(t, quote)
			return nil
		})
	}
	_ = g.Wait()
}

// emitImmediateQuote serves the one-shot quote right after a subscribe so
// clients see the ticker without waiting for the next poll tick
func (s *Streamer) emitImmediateQuote(ticker domain.Ticker) {
	source := s.registry.Default()
	if source == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), immediateQuoteTimeout)
	defer cancel()

	quote, err := source.CurrentPrice(ctx, ticker)
	if err != nil {
		s.log.Debug().Err(err).Str("ticker", ticker.String()).Msg("Immediate quote failed")
		return
	}
	s.BroadcastToTicker(ticker, quote)
}

// mirrorToRealtime subscribes the ticker on real-time sources, best
// effort. A hint narrows the mirror to one named source.
func (s *Streamer) mirrorToRealtime(ctx context.Context, ticker domain.Ticker, sourceHint string) {
	for _, src := range s.realtimeTargets(sourceHint) {
		if !src.Available() {
			continue
		}
		if err := src.Subscribe(ctx, ticker, s.broadcastCallback(), nil); err != nil {
			s.log.Warn().Err(err).Str("source", src.Name()).Str("ticker", ticker.String()).Msg("Real-time subscribe failed")
		}
	}
}

func (s *Streamer) realtimeTargets(sourceHint string) []Source {
	if sourceHint == "" {
		return s.registry.RealtimeSources()
	}
	if src, ok := s.registry.Get(sourceHint); ok && src.Realtime() {
		return []Source{src}
	}
	return nil
}

// activateRealtime connects every available real-time source and replays
// the full subscription set onto it
func (s *Streamer) activateRealtime(ctx context.Context) {
	s.mu.RLock()
	subs := make([]SubscriptionState, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, *sub)
	}
	s.mu.RUnlock()

	for _, src := range s.registry.RealtimeSources() {
		if !src.Available() {
			s.log.Debug().Str("source", src.Name()).Msg("Real-time source unavailable, skipping")
			continue
		}

		budgetCtx, cancel := context.WithTimeout(ctx, sourceOpBudget)
		err := src.Connect(budgetCtx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("source", src.Name()).Msg("Real-time source connect failed")
			continue
		}

		for _, sub := range subs {
			if sub.SourceHint != "" && sub.SourceHint != src.Name() {
				continue
			}
			if err := src.Subscribe(ctx, sub.Ticker, s.broadcastCallback(), nil); err != nil {
				s.log.Warn().Err(err).Str("source", src.Name()).Str("ticker", sub.Ticker.String()).Msg("Real-time subscribe failed")
			}
		}
		s.log.Info().Str("source", src.Name()).Int("tickers", len(subs)).Msg("Real-time source activated")
	}
}

// deactivateRealtime disconnects every connected real-time source within
// the per-source budget
func (s *Streamer) deactivateRealtime(ctx context.Context) {
	for _, src := range s.registry.RealtimeSources() {
		if !src.Connected() {
			continue
		}
		budgetCtx, cancel := context.WithTimeout(ctx, sourceOpBudget)
		if err := src.Disconnect(budgetCtx); err != nil {
			s.log.Warn().Err(err).Str("source", src.Name()).Msg("Real-time source disconnect failed")
		}
		cancel()
	}
}

func (s *Streamer) broadcastCallback() QuoteCallback {
	return func(quote *domain.Quote) {
		if quote == nil {
			return
		}
		s.BroadcastToTicker(quote.Ticker, quote)
	}
}
