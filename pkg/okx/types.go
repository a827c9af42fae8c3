package okx

import "encoding/json"

// Channel and operation names for the OKX v5 public websocket API.
const (
	ChannelTickers = "tickers"

	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"

	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventError       = "error"
)

// WsRequest is an outbound subscribe/unsubscribe frame.
type WsRequest struct {
	Op   string       `json:"op"`   // "subscribe" or "unsubscribe"
	Args []ChannelArg `json:"args"` // one entry per channel/instrument pair
}

// ChannelArg identifies a channel subscription for a single instrument.
type ChannelArg struct {
	Channel string `json:"channel"` // e.g., "tickers"
	InstID  string `json:"instId"`  // e.g., "BTC-USDT"
}

// WsResponse is the generic inbound envelope for the OKX v5 public feed.
// Data is kept raw because its shape depends on Arg.Channel.
type WsResponse struct {
	Event string          `json:"event"` // "subscribe", "unsubscribe" or "error"; empty for data frames
	Code  string          `json:"code"`  // error code, "0" on success
	Msg   string          `json:"msg"`   // human-readable error message
	Arg   ChannelArg      `json:"arg"`
	Data  json.RawMessage `json:"data"` // delay decoding
}

// TickerData is one item of a tickers data frame. Numeric fields arrive
// as strings and are validated during normalization.
type TickerData struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`    // last traded price
	Open24h string `json:"open24h"` // 24h open price
	Vol24h  string `json:"vol24h"`  // 24h volume
	High24h string `json:"high24h"` // 24h high
	Low24h  string `json:"low24h"`  // 24h low
	Ts      string `json:"ts"`      // milliseconds since epoch
}
