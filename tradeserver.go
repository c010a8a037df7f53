package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"curveExchange/config"
	"curveExchange/logger"
	"curveExchange/server"
	"curveExchange/serviceEvents"
	"curveExchange/servicePriceVariation"
	"curveExchange/serviceTrade"
	"curveExchange/settlement"
	"curveExchange/storage"
)

type app struct {
	cfg       *config.Config
	store     storage.Store
	exchange  *serviceTrade.Exchange
	feed      *servicePriceVariation.PriceFeed
	publisher *serviceEvents.KafkaPublisher
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %v storage: %w", cfg.Storage.Driver, err)
	}

	a := &app{cfg: cfg, store: store}

	opts := serviceTrade.Options{
		SuperOperators: cfg.Exchange.SuperOperators,
		ErrorFee:       cfg.Exchange.ErrorFee,
		RefundSurplus:  cfg.Exchange.RefundSurplus,
		LockStripes:    cfg.Exchange.LockStripes,
		Log:            logger.For("exchange"),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = serviceEvents.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts.Publisher = a.publisher
	}

	// the feed reads assets through the exchange, which notifies the feed
	a.exchange = serviceTrade.NewExchange(store, opts)
	a.feed = servicePriceVariation.NewPriceFeed(a.exchange, servicePriceVariation.Options{
		Heartbeat:   cfg.PriceFeed.Heartbeat,
		MinInterval: cfg.PriceFeed.MinInterval,
		Buffer:      cfg.PriceFeed.Buffer,
		Log:         logger.For("pricefeed"),
	})
	a.exchange.SetNotifier(a.feed)

	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logrus.Warnf("close kafka publisher: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logrus.Warnf("close storage: %v", err)
	}
}

func (a *app) settler() settlement.Settler {
	if a.cfg.Settlement.WebhookURL == "" {
		return settlement.Discard{}
	}
	return settlement.NewWebhook(settlement.WebhookOptions{
		URL:        a.cfg.Settlement.WebhookURL,
		Timeout:    a.cfg.Settlement.Timeout,
		RetryCount: a.cfg.Settlement.RetryCount,
		Token:      a.cfg.Settlement.Token,
	})
}

func runServer(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.feed.Run(ctx)

	s := server.NewServer(a.exchange, a.feed.Updates(), server.Options{
		CallerHeader:    a.cfg.Server.CallerHeader,
		RequestTimeout:  a.cfg.Server.RequestTimeout,
		RateLimit:       a.cfg.Server.RateLimit,
		DisplayDecimals: a.cfg.Exchange.DisplayDecimals,
		Settler:         a.settler(),
		Log:             logger.For("server"),
	})
	return s.Run(ctx, a.cfg.Server.Listen)
}

// addOperator acts as the first configured super operator.
func addOperator(a *app, address string) error {
	r, err := a.exchange.AddOperator(context.Background(), serviceTrade.Call{Caller: a.cfg.Exchange.SuperOperators[0]}, address)
	if err != nil {
		return err
	}
	fmt.Println(r.Message)
	for _, op := range r.Operators {
		fmt.Println(op)
	}
	return nil
}

func listAssets(a *app) error {
	assets, err := a.exchange.GetAssets(context.Background())
	if err != nil {
		return err
	}
	for _, asset := range assets {
		fmt.Printf("%v\t%v\tsupply=%v\tprice=%v\tlisted=%v\tissuer=%v\n",
			asset.Symbol, asset.Name, asset.Supply,
			asset.SpotPrice().StringFixed(a.cfg.Exchange.DisplayDecimals), asset.Listed, asset.Issuer)
	}
	return nil
}

func printHistory(a *app, address string) error {
	txs, err := a.exchange.GetTransactions(context.Background(), address)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		fmt.Println(serviceTrade.FormatEntry(address, tx))
	}
	return nil
}

func main() {
	configFile := flag.String("config", "", "path of the yaml config file (default "+config.DefaultFile+" if present)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err = logger.Init(cfg.Log); err != nil {
		logrus.Fatalf("init logger: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	defer a.Close()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		err = runServer(a)
	case "addoperator":
		if len(args) < 2 {
			err = fmt.Errorf("missing arguments: %v addoperator <address>", os.Args[0])
			break
		}
		err = addOperator(a, args[1])
	case "assets":
		err = listAssets(a)
	case "history":
		if len(args) < 2 {
			err = fmt.Errorf("missing arguments: %v history <address>", os.Args[0])
			break
		}
		err = printHistory(a, args[1])
	default:
		err = fmt.Errorf("unknown subcommand '%v'", cmd)
	}

	if err != nil {
		a.Close()
		logrus.Fatalf("%v: %v", cmd, err)
	}
}
