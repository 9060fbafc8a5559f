package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prtline/sortation/config"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/infra/store"
)

var (
	removeBarcode string
	removeArea    int
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Queue a cart removal command for the running service",
	RunE:  removeCart,
}

func init() {
	removeCmd.Flags().StringVar(&removeBarcode, "barcode", "", "cart barcode")
	removeCmd.Flags().IntVar(&removeArea, "area", 0, "removal area (5-9)")
	rootCmd.AddCommand(removeCmd)
}

func removeCart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("remove requires a postgres store backend")
	}
	barcode := model.NormalizeBarcode(removeBarcode)
	if !model.ValidBarcode(barcode) {
		return fmt.Errorf("invalid barcode %q", removeBarcode)
	}
	if removeArea <= 0 {
		return fmt.Errorf("area must be positive")
	}
	repo, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.SaveRemoval(ctx, barcode, removeArea); err != nil {
		return err
	}
	fmt.Printf("queued removal of cart %s to area %d\n", barcode, removeArea)
	return nil
}
