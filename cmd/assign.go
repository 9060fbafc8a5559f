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
	assignBarcode string
	assignDest    int
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Write a cart destination assignment to the registry store",
	RunE:  assignCart,
}

func init() {
	assignCmd.Flags().StringVar(&assignBarcode, "barcode", "", "cart barcode")
	assignCmd.Flags().IntVar(&assignDest, "destination", 0, "physical destination station")
	rootCmd.AddCommand(assignCmd)
}

// assignCart writes through the database; the running service picks the
// change up on its next poll.
func assignCart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("assign requires a postgres store backend")
	}
	barcode := model.NormalizeBarcode(assignBarcode)
	if !model.ValidBarcode(barcode) {
		return fmt.Errorf("invalid barcode %q", assignBarcode)
	}
	repo, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.SaveAssignment(ctx, barcode, model.Destination(assignDest)); err != nil {
		return err
	}
	fmt.Printf("assigned cart %s to destination %d\n", barcode, assignDest)
	return nil
}
