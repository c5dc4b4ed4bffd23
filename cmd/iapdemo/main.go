package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/config"
	"github.com/code-payments/flipchat-iap/engine"
	"github.com/code-payments/flipchat-iap/iap"
	"github.com/code-payments/flipchat-iap/iap/memory"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		productIDs   []string
		accountToken string
		restore      bool
	)

	cmd := &cobra.Command{
		Use:   "iapdemo",
		Short: "Runs the purchase engine against an in-memory storefront",
		Long: `iapdemo fetches products from an in-memory storefront, purchases each one,
checks its entitlement status and optionally restores purchases. Configuration
is read from IAP_ prefixed environment variables or a .env file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log, err := cfg.Log.NewLogger()
			if err != nil {
				return errors.Wrap(err, "error creating logger")
			}
			defer log.Sync()

			var token *uuid.UUID
			if accountToken != "" {
				parsed, err := uuid.Parse(accountToken)
				if err != nil {
					return errors.Wrap(err, "invalid account token")
				}
				token = &parsed
			}

			return run(log, cfg, productIDs, token, restore)
		},
	}

	cmd.Flags().StringSliceVar(&productIDs, "products", []string{"id.bundle.sub", "pro", "coins"}, "product ids to fetch and purchase")
	cmd.Flags().StringVar(&accountToken, "account-token", "", "UUID to attribute purchases to")
	cmd.Flags().BoolVar(&restore, "restore", true, "restore purchases after buying")

	return cmd
}

func run(log *zap.Logger, cfg *config.Config, productIDs []string, accountToken *uuid.UUID, restore bool) error {
	tag, err := cfg.Store.LanguageTag()
	if err != nil {
		return err
	}

	store := memory.NewInMemory(
		memory.WithLocale(tag),
		memory.WithCurrencySymbol(cfg.Store.CurrencySymbol),
	)
	store.AddProduct("id.bundle.sub", "Monthly", "Monthly subscription", "4.99", "autoRenewable")
	store.AddProduct("pro", "Pro", "Unlock everything, forever", "9.99", "nonConsumable")
	store.AddProduct("coins", "Coins", "A pile of coins", "0.99", "consumable")
	store.AddProduct("season", "Season Pass", "One season of extras", "14.99", "nonRenewable")

	e := engine.New(
		log,
		store,
		engine.WithObserver(&printer{}),
		engine.WithStatusCacheTTL(cfg.StatusCacheTTL),
	)
	defer e.Close()

	if err := wait(func(c engine.Completion) { e.RequestProducts(productIDs, c) }); err != nil {
		return errors.Wrap(err, "error requesting products")
	}

	for _, id := range productIDs {
		if err := wait(func(c engine.Completion) { e.PurchaseProduct(id, accountToken, c) }); err != nil {
			fmt.Printf("purchase %s failed: %v\n", id, err)
			continue
		}

		status := make(chan string, 1)
		e.CheckPurchaseStatus(id, func(tx iap.Transaction, found bool) {
			if !found {
				status <- "not entitled"
				return
			}
			status <- "entitled by transaction " + tx.ID
		})
		fmt.Printf("status %s: %s\n", id, <-status)
	}

	if restore {
		if err := wait(e.RestorePurchases); err != nil {
			return errors.Wrap(err, "error restoring purchases")
		}
	}

	return nil
}

func wait(op func(engine.Completion)) error {
	done := make(chan error, 1)
	op(func(err error) { done <- err })
	return <-done
}

type printer struct{}

func (*printer) OnFinishPurchase(productID string, tx iap.Transaction) {
	fmt.Printf("finished %s: transaction %s purchased %s\n", productID, tx.ID, tx.PurchaseDate.Format("2006-01-02 15:04:05"))
}

func (*printer) OnFailPurchase(productID string, reason string) {
	fmt.Printf("failed %s: %s\n", productID, reason)
}

func (*printer) OnProductsUpdated(products []iap.Product) {
	for _, p := range products {
		fmt.Printf("product %s (%s): %s %s\n", p.ID, p.Type, p.DisplayName, p.DisplayPrice)
	}
}

func (*printer) OnPurchasesRestored(txs []iap.Transaction) {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ProductID
	}
	fmt.Printf("restored %d purchases: %s\n", len(txs), strings.Join(ids, ", "))
}
