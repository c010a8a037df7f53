package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"curveExchange/entity"
	"curveExchange/failure"
	"curveExchange/metrics"
	"curveExchange/serviceTrade"
	"curveExchange/settlement"
)

type Server interface {
	Run(ctx context.Context, listen string) error
	Handler() http.Handler
}

type Options struct {
	CallerHeader    string
	RequestTimeout  time.Duration
	RateLimit       float64
	DisplayDecimals int32
	Settler         settlement.Settler
	Log             *logrus.Entry
}

type server struct {
	ex      *serviceTrade.Exchange
	router  *gin.Engine
	opts    Options
	limiter *requestRateLimit
	log     *logrus.Entry

	priceUpdates    <-chan entity.MarketAsset
	streamClients   map[*streamClient]struct{}
	streamClientsMu sync.RWMutex
}

func NewServer(ex *serviceTrade.Exchange, priceUpdates <-chan entity.MarketAsset, opts Options) *server {
	if opts.CallerHeader == "" {
		opts.CallerHeader = "Referer"
	}
	if opts.Settler == nil {
		opts.Settler = settlement.Discard{}
	}
	if opts.Log == nil {
		opts.Log = logrus.WithField("module", "server")
	}

	g := gin.New()
	g.Use(gin.Recovery())
	_ = g.SetTrustedProxies(nil)

	s := &server{
		ex:            ex,
		router:        g,
		opts:          opts,
		limiter:       newRequestRateLimit(),
		log:           opts.Log,
		priceUpdates:  priceUpdates,
		streamClients: make(map[*streamClient]struct{}),
	}

	s.routes()

	return s
}

func (s *server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *server) Run(ctx context.Context, listen string) error {
	if s.priceUpdates != nil {
		go s.forwardPriceChanges(ctx)
	}

	srv := &http.Server{Addr: listen, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %v", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeStreamClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) routes() {
	s.router.GET("/", s.handleIndex())
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	// long lived, so no request timeout
	s.router.GET("/rates/stream", s.identify(), s.accessLog(), s.handlePriceStream())

	api := s.router.Group("", s.identify(), s.accessLog(), s.rateLimit(), s.requestTimeout())

	api.GET("/assets", s.handleAssets())
	api.GET("/assets/:symbol", s.handleAsset())
	api.POST("/assets/mint", s.handleMint())
	api.POST("/assets/list", s.handleList())
	api.POST("/assets/unlist", s.handleUnlist())

	api.GET("/users/operators", s.handleOperators())
	api.POST("/users/operators", s.handleAddOperator())
	api.DELETE("/users/operators", s.handleRemoveOperator())
	api.GET("/users/me", s.handleWallet(true))
	api.GET("/users/me/balances", s.handleBalances(true))
	api.GET("/users/me/txs", s.handleTransactions(true))
	api.GET("/users/:address", s.handleWallet(false))
	api.GET("/users/:address/balances", s.handleBalances(false))
	api.GET("/users/:address/txs", s.handleTransactions(false))

	api.POST("/buy", s.handleBuy())
	api.POST("/sell", s.handleSell())
	api.POST("/swap", s.handleSwap())
}

type assetView struct {
	entity.Asset
	SpotPrice string `json:"spotPrice"`
}

func (s *server) viewOf(a entity.Asset) assetView {
	return assetView{Asset: a, SpotPrice: a.SpotPrice().StringFixed(s.opts.DisplayDecimals)}
}

type receiptView struct {
	Status      int                 `json:"status"`
	Message     string              `json:"message"`
	Asset       *assetView          `json:"asset,omitempty"`
	Cost        int64               `json:"cost,omitempty"`
	Proceeds    int64               `json:"proceeds,omitempty"`
	ValueUsed   int64               `json:"valueUsed,omitempty"`
	Spent       int64               `json:"spent,omitempty"`
	Received    int64               `json:"received,omitempty"`
	Balance     *int64              `json:"balance,omitempty"`
	Operators   []string            `json:"operators,omitempty"`
	Transaction *entity.Transaction `json:"transaction,omitempty"`
	Settlement  *entity.Settlement  `json:"settlement,omitempty"`
}

// respond writes a successful receipt and executes its settlement.
func (s *server) respond(c *gin.Context, r *serviceTrade.Receipt) {
	view := receiptView{
		Status:      http.StatusOK,
		Message:     r.Message,
		Cost:        r.Cost,
		Proceeds:    r.Proceeds,
		ValueUsed:   r.ValueUsed,
		Spent:       r.Spent,
		Received:    r.Received,
		Operators:   r.Operators,
		Transaction: r.Transaction,
		Settlement:  r.Settlement,
	}
	if r.Asset != nil {
		v := s.viewOf(*r.Asset)
		view.Asset = &v
	}
	if r.Transaction != nil {
		b := r.Balance
		view.Balance = &b
	}

	if r.Settlement != nil {
		header := refundHeader
		if r.Settlement.Kind == entity.SettlementPayout {
			header = payoutHeader
		}
		c.Header(header, strconv.FormatInt(r.Settlement.Amount, 10))
		s.settle(c, *r.Settlement)
	}

	c.JSON(http.StatusOK, view)
}

// settle runs after the exchange committed; a failing settler is logged and
// the host still gets the instruction through the response headers.
func (s *server) settle(c *gin.Context, st entity.Settlement) {
	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.opts.Settler.Settle(ctx, st); err != nil {
		s.log.WithFields(logrus.Fields{
			"kind":      st.Kind,
			"recipient": st.Recipient,
			"amount":    st.Amount,
		}).Errorf("settlement failed: %v", err)
	}
}

func (s *server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.abortWithError(c, newUserError(failure.ValidationError, "invalid request body: %v", err))
		return false
	}
	return true
}

// bindPaid is bind for requests carrying attached value, which is refunded
// when the body is unusable.
func (s *server) bindPaid(c *gin.Context, op string, call serviceTrade.Call, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.abortWithError(c, s.ex.Refuse(op, call, newUserError(failure.ValidationError, "invalid request body: %v", err)))
		return false
	}
	return true
}

func (s *server) handleAssets() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := s.ex.GetAssets(c.Request.Context())
		if err != nil {
			s.abortWithError(c, err)
			return
		}

		views := make([]assetView, 0, len(assets))
		for _, a := range assets {
			views = append(views, s.viewOf(a))
		}
		c.JSON(http.StatusOK, views)
	}
}

func (s *server) handleAsset() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := s.ex.GetAsset(c.Request.Context(), c.Param("symbol"))
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.viewOf(*asset))
	}
}

type mintRequest struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	InitialSupply int64           `json:"initialSupply"`
	BasePrice     int64           `json:"basePrice"`
	Slope         decimal.Decimal `json:"slope"`
}

func (s *server) handleMint() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req mintRequest
		if !s.bindPaid(c, "mint", call, &req) {
			return
		}

		r, err := s.ex.Mint(c.Request.Context(), call, serviceTrade.MintRequest{
			Name:          req.Name,
			Symbol:        req.Symbol,
			InitialSupply: req.InitialSupply,
			BasePrice:     req.BasePrice,
			Slope:         req.Slope,
		})
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

type listingRequest struct {
	Symbol    string          `json:"symbol"`
	BasePrice int64           `json:"basePrice"`
	Slope     decimal.Decimal `json:"slope"`
}

func (s *server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req listingRequest
		if !s.bind(c, &req) {
			return
		}

		r, err := s.ex.List(c.Request.Context(), call, req.Symbol, req.BasePrice, req.Slope)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

func (s *server) handleUnlist() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req listingRequest
		if !s.bind(c, &req) {
			return
		}

		r, err := s.ex.Unlist(c.Request.Context(), call, req.Symbol)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

type operatorRequest struct {
	Address string `json:"address"`
}

func (s *server) handleOperators() gin.HandlerFunc {
	return func(c *gin.Context) {
		ops, super, err := s.ex.GetOperators(c.Request.Context(), c.GetString(callerKey))
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"operators": ops, "superOperators": super})
	}
}

func (s *server) handleAddOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req operatorRequest
		if !s.bind(c, &req) {
			return
		}

		r, err := s.ex.AddOperator(c.Request.Context(), call, req.Address)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

// handleRemoveOperator takes the address from the query or, failing that, the body.
func (s *server) handleRemoveOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		req := operatorRequest{Address: c.Query("address")}
		if req.Address == "" && !s.bind(c, &req) {
			return
		}

		r, err := s.ex.RemoveOperator(c.Request.Context(), call, req.Address)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

func addressOf(c *gin.Context, me bool) string {
	if me {
		return c.GetString(callerKey)
	}
	return c.Param("address")
}

func (s *server) handleWallet(me bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := addressOf(c, me)
		if address == "" {
			s.abortWithError(c, newUserError(failure.ValidationError, "no caller address"))
			return
		}

		w, err := s.ex.GetWallet(c.Request.Context(), address)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func (s *server) handleBalances(me bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := addressOf(c, me)
		if address == "" {
			s.abortWithError(c, newUserError(failure.ValidationError, "no caller address"))
			return
		}

		b, err := s.ex.GetBalances(c.Request.Context(), address)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

func (s *server) handleTransactions(me bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := addressOf(c, me)
		if address == "" {
			s.abortWithError(c, newUserError(failure.ValidationError, "no caller address"))
			return
		}

		txs, err := s.ex.GetTransactions(c.Request.Context(), address)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

type tradeRequest struct {
	Symbol string `json:"symbol"`
	Amount int64  `json:"amount"`
}

func (s *server) handleBuy() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req tradeRequest
		if !s.bindPaid(c, "buy", call, &req) {
			return
		}

		r, err := s.ex.Buy(c.Request.Context(), call, req.Symbol, req.Amount)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

func (s *server) handleSell() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req tradeRequest
		if !s.bind(c, &req) {
			return
		}

		r, err := s.ex.Sell(c.Request.Context(), call, req.Symbol, req.Amount)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}

type swapRequest struct {
	FromSymbol string `json:"fromSymbol"`
	ToSymbol   string `json:"toSymbol"`
	Amount     int64  `json:"amount"`
}

func (s *server) handleSwap() gin.HandlerFunc {
	return func(c *gin.Context) {
		call, err := callOf(c)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		var req swapRequest
		if !s.bind(c, &req) {
			return
		}

		r, err := s.ex.Swap(c.Request.Context(), call, req.FromSymbol, req.ToSymbol, req.Amount)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respond(c, r)
	}
}
