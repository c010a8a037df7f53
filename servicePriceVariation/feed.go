package servicePriceVariation

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"curveExchange/entity"
)

const (
	minimumUpdateInterval = 200 * time.Millisecond
	defaultHeartbeat      = 10 * time.Second
	defaultBuffer         = 64
)

type AssetSource interface {
	GetAssets(ctx context.Context) ([]entity.Asset, error)
}

type Options struct {
	// Heartbeat re-sends the spot price of every listed asset.
	Heartbeat time.Duration
	// MinInterval throttles updates of a single symbol.
	MinInterval time.Duration
	Buffer      int
	Now         func() time.Time
	Log         *logrus.Entry
}

// PriceFeed turns asset changes into spot price updates for stream clients.
// Prices only move when supply or curve parameters change, so the feed is
// driven by the exchange plus a periodic heartbeat.
type PriceFeed struct {
	source      AssetSource
	updates     chan entity.MarketAsset
	heartbeat   time.Duration
	minInterval time.Duration
	now         func() time.Time
	log         *logrus.Entry

	mu       sync.Mutex
	lastSent map[string]time.Time
	pending  map[string]entity.Asset
}

func NewPriceFeed(source AssetSource, opts Options) *PriceFeed {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = minimumUpdateInterval
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.WithField("module", "pricefeed")
	}

	return &PriceFeed{
		source:      source,
		updates:     make(chan entity.MarketAsset, opts.Buffer),
		heartbeat:   opts.Heartbeat,
		minInterval: opts.MinInterval,
		now:         opts.Now,
		log:         opts.Log,
		lastSent:    make(map[string]time.Time),
		pending:     make(map[string]entity.Asset),
	}
}

func (pf *PriceFeed) Updates() <-chan entity.MarketAsset {
	return pf.updates
}

// AssetChanged never blocks: a throttled change is kept until the next flush,
// and only the latest state per symbol is kept.
func (pf *PriceFeed) AssetChanged(asset entity.Asset) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if last, ok := pf.lastSent[asset.Symbol]; ok && pf.now().Sub(last) < pf.minInterval {
		pf.pending[asset.Symbol] = asset
		return
	}
	pf.emit(asset)
}

// flush sends every pending change whose throttle interval has passed.
func (pf *PriceFeed) flush() {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	for sym, asset := range pf.pending {
		if pf.now().Sub(pf.lastSent[sym]) < pf.minInterval {
			continue
		}
		pf.emit(asset)
	}
}

func (pf *PriceFeed) beat(ctx context.Context) {
	assets, err := pf.source.GetAssets(ctx)
	if err != nil {
		pf.log.Warnf("heartbeat: load assets failed: %v", err)
		return
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()
	for _, asset := range assets {
		if !asset.Listed {
			continue
		}
		pf.emit(asset)
	}
}

// emit requires pf.mu.
func (pf *PriceFeed) emit(asset entity.Asset) {
	now := pf.now()
	update := entity.MarketAsset{
		Symbol: asset.Symbol,
		Supply: asset.Supply,
		Price:  asset.SpotPrice(),
		Listed: asset.Listed,
		When:   now,
	}

	select {
	case pf.updates <- update:
		pf.lastSent[asset.Symbol] = now
		delete(pf.pending, asset.Symbol)
	default:
		// consumer is behind, retry on the next flush
		pf.pending[asset.Symbol] = asset
		pf.log.Debugf("update of %v deferred, feed buffer full", asset.Symbol)
	}
}

// Run drives heartbeats and throttled flushes until ctx is done.
func (pf *PriceFeed) Run(ctx context.Context) {
	heartbeat := time.NewTicker(pf.heartbeat)
	defer heartbeat.Stop()
	flush := time.NewTicker(pf.minInterval)
	defer flush.Stop()

	pf.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			pf.beat(ctx)
		case <-flush.C:
			pf.flush()
		}
	}
}
