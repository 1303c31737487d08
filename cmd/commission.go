package cmd

import (
	"encoding/json"
	"fmt"

	"marketplace-svc/commission"
	"marketplace-svc/config"
	"marketplace-svc/models"

	"github.com/spf13/cobra"
)

var (
	commissionPrice     float64
	commissionCategory  string
	commissionRatesFile string
)

var commissionCmd = &cobra.Command{
	Use:   "commission",
	Short: "Compute a commission split offline",
	Long: `Compute the platform commission and seller share for a price.

Examples:
  marketplace-svc commission --price 250 --category digital
  marketplace-svc commission --price 99.90 --category general --rates rates.yaml`,
	Args: cobra.NoArgs,
	RunE: runCommission,
}

func init() {
	commissionCmd.Flags().Float64Var(&commissionPrice, "price", 0, "sale price in major units")
	commissionCmd.Flags().StringVar(&commissionCategory, "category", "general", "listing category")
	commissionCmd.Flags().StringVar(&commissionRatesFile, "rates", "", "YAML rate table (defaults to the built-in table)")
}

func runCommission(cmd *cobra.Command, args []string) error {
	calc, err := newCalculator(commissionRatesFile)
	if err != nil {
		return err
	}

	split, err := calc.CommissionFor(commissionPrice, commissionCategory)
	if err != nil {
		return fmt.Errorf("%w (known categories: %v)", err, calc.Categories())
	}

	out, err := json.MarshalIndent(models.CommissionResponse{
		Price:          split.Price,
		Category:       split.Category,
		CommissionRate: split.Rate,
		Commission:     split.Commission,
		SellerAmount:   split.SellerAmount,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// newCalculator loads the rate table from path, or the default table when
// path is empty.
func newCalculator(path string) (*commission.Calculator, error) {
	rates := commission.DefaultRates()
	if path != "" {
		var err error
		if rates, err = config.LoadRates(path); err != nil {
			return nil, err
		}
	}
	return commission.New(rates)
}
