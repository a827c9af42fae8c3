package watch

import (
	"context"
	"fmt"
	"time"

	"pricewatch/config"
	"pricewatch/internal/okx/alert"
	"pricewatch/internal/okx/stream"
	"pricewatch/internal/okx/tracker"
	"pricewatch/pkg/okx"
	"pricewatch/pkg/storage/postgres"
	"pricewatch/pkg/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Watcher wires the monitoring pipeline: feed connection, threshold
// tracker, cooldown deduper, webhook notifier, and the optional alert
// history store.
type Watcher struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *okx.WSClient
	tracker  *tracker.Tracker
	deduper  *alert.Deduper
	notifier *webhook.Notifier
	history  *postgres.PostgresClient // nil when history is disabled
	metrics  *Metrics
	registry *prometheus.Registry
	fatal    chan error
}

// NewWatcher builds the pipeline from configuration. The feed
// connection is not opened until Start.
func NewWatcher(cfg *config.Config, logger *zap.Logger) (*Watcher, error) {
	tr := tracker.New(cfg.Monitor.ChangeFraction, logger)
	for _, s := range cfg.Monitor.Symbols {
		tr.SetBand(s.Symbol, s.Min, s.Max)
	}

	var history *postgres.PostgresClient
	if cfg.History.Enabled {
		var err error
		history, err = postgres.InitializeAndMigrateAlertRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return nil, fmt.Errorf("alert history store: %w", err)
		}
	}

	registry := prometheus.NewRegistry()

	w := &Watcher{
		cfg:     cfg,
		logger:  logger,
		tracker: tr,
		deduper: alert.NewDeduper(cfg.Alert.Cooldown, cfg.Alert.SweepInterval, cfg.Alert.MaxAge, logger),
		notifier: webhook.NewNotifier(
			cfg.Notify.ResolveWebhookURL(cfg.Log.Environment), cfg.Notify.Timeout, logger),
		history:  history,
		metrics:  NewMetrics(registry),
		registry: registry,
		fatal:    make(chan error, 1),
	}

	w.client = okx.NewWSClient(cfg.Feed.URL, okx.Options{
		ConnectTimeout:    cfg.Feed.ConnectTimeout,
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		SettleDelay:       cfg.Feed.SettleDelay,
		MaxAttempts:       cfg.Feed.Reconnect.MaxAttempts,
		BaseDelay:         cfg.Feed.Reconnect.BaseDelay,
	}, logger)
	w.client.SetMessageHandler(stream.MakeMessageHandler(logger, w.onTick, w.onFeedError))

	return w, nil
}

// Start subscribes the configured symbols, opens the feed connection,
// and runs the signal loop until Stop or reconnect exhaustion.
func (w *Watcher) Start() error {
	for _, s := range w.cfg.Monitor.Symbols {
		if !okx.ValidSymbol(s.Symbol) {
			w.logger.Warn("skipping symbol with invalid format", zap.String("symbol", s.Symbol))
			continue
		}
		w.client.Subscribe(s.Symbol)
	}
	if len(w.client.Subscriptions()) == 0 {
		return fmt.Errorf("no valid symbols to monitor")
	}

	if w.cfg.Status.Listen != "" {
		go w.serveStatus(w.cfg.Status.Listen)
	}
	if w.history != nil {
		go w.pruneHistoryLoop()
	}

	go w.signalLoop()

	if err := w.client.Connect(); err != nil {
		// the client has scheduled its own retry
		w.logger.Warn("initial connect failed, retrying", zap.Error(err))
	}
	return nil
}

// Fatal returns a channel that receives the terminal error when the
// feed connection cannot be restored.
func (w *Watcher) Fatal() <-chan error {
	return w.fatal
}

// Stop performs an orderly shutdown: pending reconnects are cancelled,
// the feed is closed without a follow-up reconnect, and background
// timers stop.
func (w *Watcher) Stop() {
	w.client.Disconnect()
	w.deduper.Stop()
	if w.history != nil {
		if err := w.history.Close(); err != nil {
			w.logger.Warn("failed to close alert history store", zap.Error(err))
		}
	}
}

// signalLoop is the single consumer of connection lifecycle events.
func (w *Watcher) signalLoop() {
	for ev := range w.client.Events() {
		switch ev.Kind {
		case okx.EventConnected:
			w.metrics.Connects.Inc()
			w.logger.Info("feed session established",
				zap.Strings("symbols", w.client.Subscriptions()))
		case okx.EventDisconnected:
			w.logger.Warn("feed session lost",
				zap.Int("code", ev.Code), zap.String("reason", ev.Reason))
		case okx.EventFeedError:
			w.metrics.FeedErrors.Inc()
			w.logger.Warn("feed error", zap.Error(ev.Err))
		case okx.EventExhausted:
			w.fatal <- fmt.Errorf("reconnect attempts exhausted after %d tries: %w", ev.Attempt, ev.Err)
			return
		}
	}
}

// onTick runs on the feed read loop; nothing here may block on I/O.
func (w *Watcher) onTick(tick stream.PriceTick) {
	w.metrics.TicksReceived.Inc()

	crossing := w.tracker.Update(tick)
	if crossing == nil {
		return
	}
	w.metrics.Crossings.Inc()
	w.logger.Info("band crossing",
		zap.String("symbol", crossing.Symbol),
		zap.String("direction", string(crossing.Direction)),
		zap.Float64("price", crossing.Price),
		zap.Float64("threshold", crossing.Threshold))

	key := crossing.Key()
	if !w.deduper.ShouldDispatch(key) {
		w.metrics.AlertsSuppressed.Inc()
		w.logger.Debug("alert suppressed by cooldown", zap.String("key", key))
		return
	}

	// Fire and forget; the next tick must not wait on the webhook.
	go w.dispatch(crossing, key)
}

func (w *Watcher) onFeedError(err error) {
	w.metrics.FeedErrors.Inc()
	w.logger.Warn("malformed feed data", zap.Error(err))
}

func (w *Watcher) dispatch(c *tracker.Crossing, key string) {
	firedAt := time.Now()
	msg := formatAlert(c)

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Notify.Timeout)
	delivered := w.notifier.Send(ctx, msg, key)
	cancel()
	if delivered {
		w.metrics.AlertsSent.Inc()
	} else {
		w.metrics.AlertsFailed.Inc()
	}

	if w.history == nil {
		return
	}
	dbCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	record := &postgres.AlertRecord{
		Symbol:        c.Symbol,
		Direction:     string(c.Direction),
		Price:         c.Price,
		Threshold:     c.Threshold,
		ChangePercent: c.ChangePercent,
		BandMin:       c.NewBand.Min,
		BandMax:       c.NewBand.Max,
		Delivered:     delivered,
		FiredAt:       firedAt,
	}
	if err := w.history.InsertAlert(dbCtx, record); err != nil {
		w.logger.Warn("failed to record alert history", zap.Error(err))
	}
}

// pruneHistoryLoop trims audit rows past the retention window once a day.
func (w *Watcher) pruneHistoryLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.history.DeleteOldAlerts(ctx, time.Now().Add(-w.cfg.History.Retention))
		cancel()
		if err != nil {
			w.logger.Warn("failed to prune alert history", zap.Error(err))
		}
	}
}

func formatAlert(c *tracker.Crossing) string {
	side := "above"
	if c.Direction == tracker.DirectionLower {
		side = "below"
	}
	return fmt.Sprintf("%s crossed %s %.4f at %.4f (%+.2f%% since last tick); new band [%.4f, %.4f]",
		c.Symbol, side, c.Threshold, c.Price, c.ChangePercent, c.NewBand.Min, c.NewBand.Max)
}
