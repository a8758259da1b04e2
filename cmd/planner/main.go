// Command planner answers "how much and how long" questions about a
// savings plan. It never touches the ledger.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"risparmi/internal/calculator"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "planner: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Savings planner")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  planner <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  monthly      Monthly payment needed to reach a target")
	fmt.Fprintln(w, "  simulate     Month by month growth of a plan")
	fmt.Fprintln(w, "  scenarios    Monthly payment needed at every preset rate")
	fmt.Fprintln(w, "  lump-sum     Effect of adding a lump sum up front")
	fmt.Fprintln(w, "  achievement  Date a target is reached at a monthly rate")
	fmt.Fprintln(w, "  help         Show this help message")
	fmt.Fprintln(w, "\nRun 'planner <command> -h' for the options of a command.")
}

func run(args []string, out io.Writer, now time.Time) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("missing command")
	}

	switch args[0] {
	case "monthly":
		return runMonthly(args[1:], out)
	case "simulate":
		return runSimulate(args[1:], out)
	case "scenarios":
		return runScenarios(args[1:], out)
	case "lump-sum":
		return runLumpSum(args[1:], out)
	case "achievement":
		return runAchievement(args[1:], out, now)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// euros formats a calculator amount to the cent.
func euros(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// nonNegative rejects negative and non-finite inputs before they reach
// the calculator.
func nonNegative(values map[string]float64) error {
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("-%s must be a non-negative number, got %v", name, v)
		}
	}
	return nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runMonthly(args []string, out io.Writer) error {
	fs := newFlagSet("monthly", out)
	target := fs.Float64("target", 0, "amount to reach")
	initial := fs.Float64("initial", 0, "amount already saved")
	rate := fs.Float64("rate", 0, "annual interest rate in percent")
	years := fs.Float64("years", 1, "horizon in years")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := nonNegative(map[string]float64{"target": *target, "initial": *initial, "rate": *rate, "years": *years}); err != nil {
		return err
	}
	if *target == 0 {
		return errors.New("-target is required")
	}

	p := calculator.MonthlyPaymentNeeded(*target, *initial, *rate, *years)
	fmt.Fprintf(out, "Monthly payment: %s over %d months\n", euros(p), calculator.Months(*years))
	return nil
}

func runSimulate(args []string, out io.Writer) error {
	fs := newFlagSet("simulate", out)
	initial := fs.Float64("initial", 0, "starting amount")
	monthly := fs.Float64("monthly", 0, "monthly contribution")
	rate := fs.Float64("rate", 0, "annual interest rate in percent")
	years := fs.Float64("years", 1, "horizon in years")
	points := fs.Bool("points", false, "print every month")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := nonNegative(map[string]float64{"initial": *initial, "monthly": *monthly, "rate": *rate, "years": *years}); err != nil {
		return err
	}

	if *points {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Month\tTotal\tInterest\t")
		for p := range calculator.Projection(*initial, *monthly, *rate, calculator.Months(*years)) {
			fmt.Fprintf(tw, "%d\t%s\t%s\t\n", p.Month, euros(p.Total), euros(p.Interest))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	res := calculator.Simulate(*initial, *monthly, *rate, *years)
	fmt.Fprintf(out, "Final amount:        %s\n", euros(res.FinalAmount))
	fmt.Fprintf(out, "Total contributions: %s\n", euros(res.TotalContributions))
	fmt.Fprintf(out, "Total interest:      %s\n", euros(res.TotalInterest))
	return nil
}

func runScenarios(args []string, out io.Writer) error {
	fs := newFlagSet("scenarios", out)
	initial := fs.Float64("initial", 0, "amount already saved")
	target := fs.Float64("target", 0, "amount to reach")
	years := fs.Float64("years", 1, "horizon in years")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := nonNegative(map[string]float64{"initial": *initial, "target": *target, "years": *years}); err != nil {
		return err
	}
	if *target == 0 {
		return errors.New("-target is required")
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Scenario\tRate\tMonthly")
	for _, sc := range calculator.CompareScenarios(*initial, *target, *years) {
		fmt.Fprintf(tw, "%s\t%g%%\t%s\n", sc.Label, sc.AnnualRatePct, euros(sc.MonthlyContribution))
	}
	return tw.Flush()
}

func runLumpSum(args []string, out io.Writer) error {
	fs := newFlagSet("lump-sum", out)
	initial := fs.Float64("initial", 0, "starting amount")
	monthly := fs.Float64("monthly", 0, "monthly contribution")
	rate := fs.Float64("rate", 0, "annual interest rate in percent")
	lump := fs.Float64("lump-sum", 0, "amount added up front")
	years := fs.Float64("years", 1, "horizon in years")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := nonNegative(map[string]float64{"initial": *initial, "monthly": *monthly, "rate": *rate, "lump-sum": *lump, "years": *years}); err != nil {
		return err
	}

	res := calculator.LumpSumImpact(*initial, *monthly, *rate, *lump, *years)
	fmt.Fprintf(out, "Without lump sum: %s\n", euros(res.WithoutLumpSum))
	fmt.Fprintf(out, "With lump sum:    %s\n", euros(res.WithLumpSum))
	fmt.Fprintf(out, "Difference:       %s\n", euros(res.Difference))
	return nil
}

func runAchievement(args []string, out io.Writer, now time.Time) error {
	fs := newFlagSet("achievement", out)
	target := fs.Float64("target", 0, "amount to reach")
	current := fs.Float64("current", 0, "amount already saved")
	monthly := fs.Float64("monthly", 0, "monthly contribution")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := nonNegative(map[string]float64{"target": *target, "current": *current, "monthly": *monthly}); err != nil {
		return err
	}

	date, err := calculator.AchievementDate(*target, *current, *monthly, now)
	if errors.Is(err, calculator.ErrNeverReached) {
		fmt.Fprintln(out, "Target never reached without a monthly contribution")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Target reached on %s\n", date.Format("2006-01-02"))
	return nil
}
