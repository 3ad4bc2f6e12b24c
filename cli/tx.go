package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/etnz/ggbackup/ledger"
)

func newTxCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Record and list transactions",
	}
	cmd.AddCommand(newTxAddCmd(e))
	cmd.AddCommand(newTxListCmd(e))
	return cmd
}

func newTxAddCmd(e *env) *cobra.Command {
	var (
		kind     string
		category string
		date     string
	)
	cmd := &cobra.Command{
		Use:   "add <amount> <description>",
		Short: "Record a transaction (saving may trigger an automatic backup)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			if !amount.IsPositive() {
				return fmt.Errorf("amount must be positive, use --type expense for expenses")
			}
			if kind != ledger.Income && kind != ledger.Expense {
				return fmt.Errorf("--type must be %q or %q", ledger.Income, ledger.Expense)
			}
			if date == "" {
				date = time.Now().Format(time.DateOnly)
			} else if _, err := time.Parse(time.DateOnly, date); err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
			}

			ctx := commandContext(cmd)
			app, err := e.app(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			tx := ledger.Transaction{
				ID:          ledger.NewID(uuid.NewString()),
				Description: args[1],
				Amount:      amount,
				Type:        kind,
				Category:    category,
				Date:        date,
			}
			if err := app.Ledger.AddTransaction(ctx, tx); err != nil {
				return err
			}
			notify(e.stdout, levelSuccess, fmt.Sprintf("Recorded %s %s: %s.", kind, amount.StringFixed(2), tx.Description))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", ledger.Expense, "Transaction type: income|expense")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Category")
	cmd.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD (default today)")
	return cmd
}

func newTxListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the recorded transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.app(commandContext(cmd), false)
			if err != nil {
				return err
			}
			defer app.Close()

			txs := app.Ledger.State().Transactions
			return render(e.stdout, e.output, txs, transactionRows(txs))
		},
	}
}
