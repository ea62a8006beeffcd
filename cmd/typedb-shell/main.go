// Command typedb-shell is a minimal interactive REPL over the driver: it
// opens one transaction per --transaction-type flag value, reads queries
// from stdin, and forwards each one verbatim to Query. It never parses or
// validates query syntax itself -- that's the server's job.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/typedb/typedb-driver-sub001/logging"
	typedb "github.com/typedb/typedb-driver-sub001"
)

const historyFile = ".typedb-shell-history"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		address    string
		username   string
		password   string
		database   string
		txTypeFlag string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "typedb-shell",
		Short: "Interactive shell for a typedb cluster driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			txType, err := parseTransactionType(txTypeFlag)
			if err != nil {
				return err
			}

			var log logging.Func
			if verbose {
				log = func(level logging.Level, format string, args ...any) {
					fmt.Fprintf(os.Stderr, "[%s] "+format+"\n", append([]any{level}, args...)...)
				}
			}

			addrs, err := typedb.AddressesFromStrings(address)
			if err != nil {
				return errors.Wrap(err, "invalid --address")
			}

			driver, err := typedb.OpenDriver(cmd.Context(), addrs, typedb.NewCredentials(username, password), typedb.WithLogFunc(log))
			if err != nil {
				return errors.Wrap(err, "failed to open driver")
			}
			defer driver.ForceClose()

			return runShell(cmd.Context(), driver, database, txType)
		},
	}

	cmd.Flags().StringVar(&address, "address", "localhost:1729", "server address")
	cmd.Flags().StringVar(&username, "username", "admin", "username")
	cmd.Flags().StringVar(&password, "password", "password", "password")
	cmd.Flags().StringVar(&database, "database", "", "database to open the transaction against")
	cmd.Flags().StringVar(&txTypeFlag, "transaction-type", "read", "transaction type: read, write, or schema")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log driver diagnostics to stderr")
	cmd.MarkFlagRequired("database")

	return cmd
}

func parseTransactionType(s string) (typedb.TransactionType, error) {
	switch strings.ToLower(s) {
	case "read":
		return typedb.Read, nil
	case "write":
		return typedb.Write, nil
	case "schema":
		return typedb.Schema, nil
	default:
		return 0, errors.Errorf("unrecognized transaction type %q", s)
	}
}

func runShell(ctx context.Context, driver *typedb.Driver, database string, txType typedb.TransactionType) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	txn, err := driver.Transaction(ctx, database, txType)
	if err != nil {
		return errors.Wrap(err, "failed to open transaction")
	}
	defer txn.Close()

	for {
		query, err := line.Prompt("typedb> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading input")
		}
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		line.AppendHistory(query)

		if err := runQuery(ctx, txn, query); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func runQuery(ctx context.Context, txn *typedb.Transaction, query string) error {
	answer, err := txn.Query(ctx, query, nil)
	if err != nil {
		return err
	}

	columns, err := answer.Columns(ctx)
	if err != nil {
		return err
	}
	if len(columns) > 0 {
		fmt.Println(strings.Join(columns, "\t"))
	}

	for {
		row, ok, err := answer.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fmt.Println(formatRow(row))
	}
}

func formatRow(row []*typedb.Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, "\t")
}

func formatValue(v *typedb.Value) string {
	if v == nil {
		return "null"
	}
	switch v.Kind {
	case typedb.KindNull:
		return "null"
	case typedb.KindBoolean:
		return fmt.Sprintf("%v", v.BooleanValue)
	case typedb.KindLong:
		return fmt.Sprintf("%d", v.LongValue)
	case typedb.KindDouble:
		return fmt.Sprintf("%v", v.DoubleValue)
	case typedb.KindDecimal:
		return v.DecimalValue.String()
	case typedb.KindString:
		return v.StringValue
	case typedb.KindDuration:
		return v.DurationValue.String()
	default:
		return fmt.Sprintf("%+v", v)
	}
}
