// Package main provides the trading CLI: account management, trades and
// rate queries against the configured ledger store.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/auth"
	"github.com/valuta-trade/internal/config"
	"github.com/valuta-trade/internal/errors"
	"github.com/valuta-trade/internal/logging"
	"github.com/valuta-trade/internal/rates"
	"github.com/valuta-trade/internal/registry"
	"github.com/valuta-trade/internal/service"
	"github.com/valuta-trade/internal/storage"
)

const usage = `Usage: valutatrade <command> [flags]

Commands:
  register        create an account (-u username -p password)
  login           log in and persist the session (-u username -p password)
  logout          drop the persisted session
  show-portfolio  print holdings valued in a base currency (--base USD)
  buy             buy a currency with USD (--code BTC --amount 0.01)
  sell            sell a currency for USD (--code BTC --amount 0.01)
  get-rate        print the current rate (--from BTC --to USD)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	store, err := openStore(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to open ledger store")
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	reg := registry.NewWithDefaults()

	var source rates.Source
	if cfg.Rates.SourceURL != "" {
		httpSource := rates.NewHTTPSource(cfg.Rates.SourceURL, cfg.Rates.FetchTimeout, cfg.Rates.RequestsPerSecond)
		source = rates.NewResilientSource(httpSource, rates.ResilientConfig{Logger: logger})
	} else {
		source = rates.NewStaticSource(rates.DefaultQuotes())
	}

	cache := rates.NewCache(rates.Config{
		Registry:        reg,
		Source:          source,
		Store:           store,
		FreshnessWindow: cfg.Rates.FreshnessWindow,
		FetchTimeout:    cfg.Rates.FetchTimeout,
		Logger:          logger,
	})

	authSvc := auth.NewService(store, logger)
	tradingSvc := service.NewTradingService(store, reg, cache, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app := &cli{
		cfg:     cfg,
		logger:  logger,
		auth:    authSvc,
		trading: tradingSvc,
	}

	if err := app.run(ctx, command, args); err != nil {
		app.renderError(err)
		os.Exit(1)
	}
}

type cli struct {
	cfg     *config.Config
	logger  *logging.Logger
	auth    *auth.Service
	trading *service.TradingService
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.register(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "logout":
		return c.logout()
	case "show-portfolio":
		return c.showPortfolio(ctx, args)
	case "buy":
		return c.trade(ctx, "buy", args)
	case "sell":
		return c.trade(ctx, "sell", args)
	case "get-rate":
		return c.getRate(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.NewInvalidArgument(fmt.Sprintf("unknown command %q", command))
	}
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := c.auth.Register(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s. Your portfolio starts with 1000 USD. Log in to start trading.\n", user.Username)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := c.auth.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	if err := saveSession(c.cfg.Store.DataDir, session{UserID: user.ID, Username: user.Username}); err != nil {
		return err
	}
	fmt.Printf("Welcome, %s!\n", user.Username)
	return nil
}

func (c *cli) logout() error {
	if err := clearSession(c.cfg.Store.DataDir); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func (c *cli) showPortfolio(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show-portfolio", flag.ExitOnError)
	base := fs.String("base", "USD", "base currency for valuation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := currentSession(c.cfg.Store.DataDir)
	if err != nil {
		return err
	}

	view, err := c.trading.View(ctx, sess.UserID, *base)
	if err != nil {
		return err
	}

	fmt.Printf("Portfolio of %s (in %s):\n", sess.Username, view.BaseCode)
	for _, h := range view.Holdings {
		if h.Valued {
			fmt.Printf("  %-5s %20s  =  %s %s\n", h.Code, h.Balance.String(), h.Value.StringFixed(2), view.BaseCode)
		} else {
			fmt.Printf("  %-5s %20s  (no rate available)\n", h.Code, h.Balance.String())
		}
	}
	fmt.Printf("Total: %s %s\n", view.Total.StringFixed(2), view.BaseCode)
	return nil
}

func (c *cli) trade(ctx context.Context, side string, args []string) error {
	fs := flag.NewFlagSet(side, flag.ExitOnError)
	code := fs.String("code", "", "currency code")
	amountStr := fs.String("amount", "", "amount to "+side)
	if err := fs.Parse(args); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(*amountStr)
	if err != nil {
		return errors.NewInvalidAmount(fmt.Sprintf("cannot parse %q as a number", *amountStr))
	}

	sess, err := currentSession(c.cfg.Store.DataDir)
	if err != nil {
		return err
	}

	var result *service.TradeResult
	if side == "buy" {
		result, err = c.trading.Buy(ctx, sess.UserID, *code, amount)
	} else {
		result, err = c.trading.Sell(ctx, sess.UserID, *code, amount)
	}
	if err != nil {
		return err
	}

	verb := "Bought"
	if result.Side == "SELL" {
		verb = "Sold"
	}
	fmt.Printf("%s %s %s at %s USD for %s USD.\n",
		verb, result.Amount.String(), result.Code, result.Rate.String(), result.SettledUSD.StringFixed(2))
	fmt.Printf("Balance: %s %s, %s USD.\n",
		result.NewBalance.String(), result.Code, result.NewUSDBalance.StringFixed(2))
	return nil
}

func (c *cli) getRate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get-rate", flag.ExitOnError)
	from := fs.String("from", "", "currency to price")
	to := fs.String("to", "USD", "currency to price in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entry, err := c.trading.GetRate(ctx, *from, *to)
	if err != nil {
		return err
	}
	fmt.Printf("1 %s = %s %s (fetched at %s)\n",
		entry.FromCode, entry.Rate.String(), entry.ToCode, entry.FetchedAt.UTC().Format(time.RFC3339))
	return nil
}

// renderError prints user mistakes as plain messages and logs everything
// else with its cause chain.
func (c *cli) renderError(err error) {
	if errors.IsUserError(err) {
		var de *errors.DomainError
		if stderrors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", de.Message)
			return
		}
	}
	c.logger.WithError(err).Error("command failed")
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return storage.NewRedisStore(&cfg.Redis)
	case "postgres":
		return storage.NewPostgresStore(&cfg.Postgres)
	default:
		return storage.NewFileStore(cfg.Store.DataDir)
	}
}
