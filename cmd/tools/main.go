// Command tools provides local development helpers. The seed-cart subcommand
// inserts a payable demo cart and prints its id so a checkout can be opened
// against a fresh database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zeitlabs/payments-hyperpay/internal/config"
	"github.com/zeitlabs/payments-hyperpay/internal/obs"
	"github.com/zeitlabs/payments-hyperpay/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tools seed-cart [flags]")
		os.Exit(2)
	}
	switch os.Args[1] {
	case "seed-cart":
		seedCart(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}
}

func seedCart(args []string) {
	fs := flag.NewFlagSet("seed-cart", flag.ExitOnError)
	total := fs.String("total", "100.00", "cart total")
	items := fs.Int("items", 2, "number of line items")
	email := fs.String("email", "shopper@example.com", "customer email")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	amount, err := decimal.NewFromString(*total)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse total")
	}
	if *items < 1 {
		logger.Fatal().Msg("need at least one line item")
	}

	// Split the total over the items; the first line absorbs rounding.
	each := amount.Div(decimal.NewFromInt(int64(*items))).Round(2)
	first := amount.Sub(each.Mul(decimal.NewFromInt(int64(*items - 1))))

	lines := make([]store.CartItem, 0, *items)
	for i := range *items {
		price := each
		if i == 0 {
			price = first
		}
		lines = append(lines, store.CartItem{
			Name:     fmt.Sprintf("demo-sku-%d", i+1),
			Quantity: 1,
			Price:    price,
		})
	}

	st := store.New(pool, logger)
	cartID, err := st.CreateCart(ctx, store.Cart{
		Total:         amount,
		Currency:      cfg.Currency,
		CustomerEmail: *email,
	}, lines)
	if err != nil {
		logger.Fatal().Err(err).Msg("create cart")
	}
	fmt.Println(cartID)
}
