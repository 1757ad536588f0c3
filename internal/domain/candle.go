package domain

// Candle is one OHLCV bucket for a token and timeframe. Candles are fully
// derived from the event ledger and rebuildable at any time; they are never
// a primary source of truth.
type Candle struct {
	TokenAddress string
	Timeframe    string
	BucketStart  int64 // unix seconds, floor(ts/tfSec)*tfSec

	Open  float64
	High  float64
	Low   float64
	Close float64

	MarketCapUSD float64 // snapshot, last event in bucket wins

	VolumeUSD     float64
	BuyVolumeUSD  float64
	SellVolumeUSD float64

	TxCount int64
}

// Timeframes maps the configured candle timeframe labels to their width
// in seconds, ordered from finest to coarsest.
var Timeframes = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"4h":  14400,
	"1d":  86400,
}

// Bucket floors a unix-seconds timestamp to the start of its bucket.
func Bucket(ts, tfSeconds int64) int64 {
	return ts / tfSeconds * tfSeconds
}
