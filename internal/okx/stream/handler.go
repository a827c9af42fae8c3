package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"pricewatch/pkg/okx"

	"go.uber.org/zap"
)

// MakeMessageHandler returns a function that handles raw feed frames by
// decoding tickers data and forwarding each valid tick to sink. Error
// frames and unparseable input are reported through onError without
// closing the connection; a single bad item drops only that item.
func MakeMessageHandler(logger *zap.Logger, sink func(PriceTick), onError func(error)) func(msg []byte) {
	return func(msg []byte) {
		var frame okx.WsResponse
		if err := json.Unmarshal(msg, &frame); err != nil {
			logger.Warn("failed to parse feed frame", zap.Error(err))
			if onError != nil {
				onError(fmt.Errorf("unparseable frame: %w", err))
			}
			return
		}

		switch frame.Event {
		case okx.EventError:
			logger.Warn("feed error frame", zap.String("code", frame.Code), zap.String("msg", frame.Msg))
			if onError != nil {
				onError(fmt.Errorf("feed error %s: %s", frame.Code, frame.Msg))
			}
			return
		case okx.EventSubscribe, okx.EventUnsubscribe:
			logger.Debug("feed ack",
				zap.String("event", frame.Event), zap.String("instId", frame.Arg.InstID))
			return
		}

		if frame.Arg.Channel != okx.ChannelTickers || len(frame.Data) == 0 {
			return
		}

		var items []okx.TickerData
		if err := json.Unmarshal(frame.Data, &items); err != nil {
			logger.Warn("failed to parse tickers payload", zap.Error(err))
			if onError != nil {
				onError(fmt.Errorf("bad tickers payload: %w", err))
			}
			return
		}

		for _, item := range items {
			tick, ok := parseTick(item)
			if !ok {
				logger.Warn("dropping ticker item with invalid price fields",
					zap.String("instId", item.InstID),
					zap.String("last", item.Last), zap.String("open24h", item.Open24h))
				continue
			}
			sink(tick)
		}
	}
}

// parseTick normalizes one ticker item. Last and Open24h must parse as
// finite numbers; the remaining fields default to zero on failure.
func parseTick(item okx.TickerData) (PriceTick, bool) {
	last, err := parseFinite(item.Last)
	if err != nil {
		return PriceTick{}, false
	}
	open, err := parseFinite(item.Open24h)
	if err != nil {
		return PriceTick{}, false
	}

	tick := PriceTick{
		Symbol:  okx.FromInstID(item.InstID),
		Last:    last,
		Open24h: open,
	}
	tick.Vol24h, _ = strconv.ParseFloat(item.Vol24h, 64)
	tick.High24h, _ = strconv.ParseFloat(item.High24h, 64)
	tick.Low24h, _ = strconv.ParseFloat(item.Low24h, 64)
	if ms, err := strconv.ParseInt(item.Ts, 10, 64); err == nil {
		tick.Timestamp = time.UnixMilli(ms)
	}
	return tick, true
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}
