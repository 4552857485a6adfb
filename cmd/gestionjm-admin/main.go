// Command gestionjm-admin runs maintenance tasks against the SQLite
// database: printing a monthly report, resetting a PIN and exporting a
// JSON snapshot.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"gestionjm/internal/config"
	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
	"gestionjm/internal/services"
	"gestionjm/internal/storage"
)

const usage = `Usage: gestionjm-admin <command> [flags]

Commands:
  report    print the balance report of a month
  set-pin   replace a user's PIN without the current one
  export    write every expense and transfer as JSON
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "report":
		return runReport(args[1:], stdout, stderr)
	case "set-pin":
		return runSetPin(args[1:], stdin, stdout, stderr)
	case "export":
		return runExport(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

// openLedger opens the database and a ledger service that only logs
// warnings, to stderr.
func openLedger(dbPath string, stderr io.Writer) (*services.LedgerService, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger := log.New(log.Config{Level: slog.LevelWarn, Output: stderr, Component: log.ComponentReport})
	return services.NewLedgerService(repo, services.WithLogger(logger)), nil
}

func defaultDBPath() string {
	return config.Load().SQLiteDBPath
}

func runReport(args []string, stdout, stderr io.Writer) error {
	now := time.Now()
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDBPath(), "Path to database file")
	year := fs.Int("year", now.Year(), "Report year")
	month := fs.Int("month", int(now.Month()), "Report month (1-12)")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ledger, err := openLedger(*dbPath, stderr)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx := context.Background()
	report, err := ledger.MonthlyBalances(ctx, *year, *month)
	if err != nil {
		return err
	}
	totals, err := ledger.ExpensesByCategory(ctx, *year, *month)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			core.MonthlyBalanceReport
			Categories []core.CategoryTotal `json:"categories"`
		}{report, totals})
	}
	return printReport(stdout, report, totals)
}

func shortName(id core.UserID) string {
	if u, ok := core.LookupUser(id); ok {
		return u.ShortName
	}
	return string(id)
}

func printReport(w io.Writer, r core.MonthlyBalanceReport, totals []core.CategoryTotal) error {
	fmt.Fprintf(w, "Balance %s %d\n", core.MonthName(r.Month), r.Year)
	fmt.Fprintf(w, "Total de gastos: %s\n\n", core.FormatCurrency(r.TotalExpenses))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPagó\tLe corresponde\tSaldo")
	for _, id := range []core.UserID{core.Mariano, core.Gabriela} {
		p, _ := r.Parent(id)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortName(id),
			core.FormatCurrency(p.Paid), core.FormatCurrency(p.Owes), core.FormatCurrency(p.Balance))
	}
	fmt.Fprintf(tw, "%s\t%s\t\t\n", shortName(core.JuanMartin), core.FormatCurrency(r.JuanMartin.Paid))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if r.Debt != nil {
		fmt.Fprintf(w, "%s le debe %s a %s\n", shortName(r.Debt.From), core.FormatCurrency(r.Debt.Amount), shortName(r.Debt.To))
	} else {
		fmt.Fprintln(w, "Mariano y Gabriela están al día")
	}
	if r.JuanMartin.PendingReimbursement.Sign() > 0 {
		fmt.Fprintf(w, "Reintegros pendientes a %s: %s (Mariano %s, Gabriela %s)\n",
			shortName(core.JuanMartin),
			core.FormatCurrency(r.JuanMartin.PendingReimbursement),
			core.FormatCurrency(r.Reimbursements.MarianoToJuan),
			core.FormatCurrency(r.Reimbursements.GabrielaToJuan))
	}

	if len(totals) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nPor categoría:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range totals {
		fmt.Fprintf(tw, "  %s\t%s\t(%d)\n", t.Name, core.FormatCurrency(t.Total), t.Count)
	}
	return tw.Flush()
}

func runSetPin(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("set-pin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	user := fs.String("user", "", "User id (mariano, gabriela, juanmartin)")
	pinFlag := fs.String("pin", "", "New PIN (optional, will prompt if omitted)")
	dbPath := fs.String("db", defaultDBPath(), "Path to database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := core.ParseUserID(*user)
	if err != nil {
		fmt.Fprintln(stdout, "Usage: gestionjm-admin set-pin -user <id> [-pin <pin>] [-db <db_path>]")
		fs.PrintDefaults()
		return err
	}

	pin := *pinFlag
	if pin == "" {
		fmt.Fprint(stdout, "New PIN: ")
		pin, err = readPin(stdin)
		if err != nil {
			return fmt.Errorf("failed to read PIN: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	pin = strings.TrimSpace(pin)
	if err := identity.ValidatePin(pin); err != nil {
		return err
	}

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repo.Close()

	if err := identity.NewProvider(repo).SetPin(context.Background(), id, pin); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "PIN for %s updated\n", shortName(id))
	return nil
}

func readPin(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func runExport(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDBPath(), "Path to database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ledger, err := openLedger(*dbPath, stderr)
	if err != nil {
		return err
	}
	defer ledger.Close()

	snap, err := ledger.Export(context.Background())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
