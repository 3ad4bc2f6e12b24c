package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/etnz/ggbackup/ggapp"
	"github.com/etnz/ggbackup/ledger"
)

// render writes v in the requested format; the table format uses rows.
func render(w io.Writer, format string, v any, rows func(table.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := table.NewWriter()
		tw.SetStyle(table.StyleLight)
		rows(tw)
		_, err := fmt.Fprintln(w, tw.Render())
		return err
	default:
		return fmt.Errorf("unsupported --output: %s", format)
	}
}

func backupRows(records []ggapp.BackupRecord) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Backup", "Created", "Size"})
		for _, r := range records {
			tw.AppendRow(table.Row{r.ID, r.Label, r.DisplayTime, humanize.Bytes(uint64(r.SizeBytes))})
		}
	}
}

func transactionRows(txs []ledger.Transaction) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Date", "Description", "Category", "Type", "Amount"})
		for _, t := range txs {
			tw.AppendRow(table.Row{t.Date, t.Description, t.Category, t.Type, t.Amount.StringFixed(2)})
		}
	}
}

func statusRows(s ggapp.Status) func(table.Writer) {
	return func(tw table.Writer) {
		connected := "no"
		if s.Connected {
			connected = "yes"
			if !s.Expiry.IsZero() {
				connected += ", token expires " + humanize.Time(s.Expiry)
			}
		}
		lastAuto := "never"
		if !s.LastAuto.IsZero() {
			lastAuto = humanize.Time(s.LastAuto)
		}
		tw.AppendRows([]table.Row{
			{"Google Drive", connected},
			{"Folder", s.Folder},
			{"Transactions", s.Transactions},
			{"Recurring", s.Recurring},
			{"Goals", s.Goals},
			{"Balance", s.Balance},
			{"Last auto backup", lastAuto},
		})
	}
}
