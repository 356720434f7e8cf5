package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"

	"github.com/sakif/runquest/internal/achievement"
	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/insights"
	"github.com/sakif/runquest/internal/service"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed (upstream, storage)
	ExitCommandError = 2 // bad flags or configuration
	ExitAuth         = 3 // the owner has to sign in again through the web UI
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode picks the process exit code for err. Authentication failures get
// their own code so scripts can tell "sign in again" from "try later".
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if apperror.IsAuth(err) {
		return ExitAuth
	}
	return ExitFailure
}

// Response is the JSON envelope written with --format json.
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Printer renders command results as text or JSON.
type Printer struct {
	Format string
	Out    io.Writer
}

// Error writes err in the configured format.
func (p *Printer) Error(err error) {
	if p.Format == "json" {
		_ = json.NewEncoder(p.Out).Encode(Response{Status: "error", Error: err.Error()})
		return
	}
	fmt.Fprintf(p.Out, "%s %v\n", color.RedString("error:"), err)
}

// JSON writes data wrapped in the ok envelope. It reports whether the format
// was JSON, so callers fall through to their text rendering otherwise.
func (p *Printer) JSON(data any) (bool, error) {
	if p.Format != "json" {
		return false, nil
	}
	return true, json.NewEncoder(p.Out).Encode(Response{Status: "ok", Data: data})
}

func (p *Printer) SyncResult(res *service.SyncResult) error {
	if ok, err := p.JSON(res); ok {
		return err
	}

	if res.Skipped {
		fmt.Fprintf(p.Out, "%s synced recently, next sync after %s\n",
			color.YellowString("•"), res.NextSyncAt.Local().Format("15:04:05"))
		fmt.Fprintf(p.Out, "  %d achievements unlocked\n", res.TotalUnlocked)
		return nil
	}

	fmt.Fprintf(p.Out, "%s %d unlocked, %d new\n", color.GreenString("✓"), res.TotalUnlocked, res.NewlyUnlocked)
	for _, id := range res.Unlocked {
		fmt.Fprintf(p.Out, "  %s %s\n", color.GreenString("+"), id)
	}
	return nil
}

func (p *Printer) Achievements(view *service.AchievementsView) error {
	if ok, err := p.JSON(view); ok {
		return err
	}

	fmt.Fprintf(p.Out, "%d of %d unlocked\n\n", view.TotalUnlocked, view.Total)
	for _, a := range view.Achievements {
		mark := color.HiBlackString("·")
		name := a.Name
		if a.Unlocked {
			mark = color.GreenString("✓")
			name = color.New(color.Bold).Sprint(a.Name)
		}
		fmt.Fprintf(p.Out, "%s %-20s %s %5.1f%%  %s\n", mark, name, progressBar(a.Progress), a.Progress, formatValue(a.State))
	}
	return nil
}

func (p *Printer) ActivitySync(res *service.ActivitySyncResult) error {
	if ok, err := p.JSON(res); ok {
		return err
	}
	fmt.Fprintf(p.Out, "%s %d activities synced\n", color.GreenString("✓"), res.Synced)
	return nil
}

func (p *Printer) Activities(page *service.ActivityPage) error {
	if ok, err := p.JSON(page); ok {
		return err
	}

	for _, a := range page.Activities {
		fmt.Fprintf(p.Out, "%s  %-30s %6.2f km  %8s  %s/km\n",
			a.StartDateLocal.Format("2006-01-02"),
			truncate(a.Name, 30),
			a.DistanceMeters/1000,
			insights.FormatDuration(a.MovingTimeSeconds),
			insights.FormatPace(a.DistanceMeters, a.MovingTimeSeconds),
		)
	}
	fmt.Fprintln(p.Out, color.HiBlackString("page %d, %d of %d activities", page.Page, len(page.Activities), page.Total))
	return nil
}

func (p *Printer) Catalog(defs []achievement.Definition) error {
	if ok, err := p.JSON(defs); ok {
		return err
	}

	cyan := color.New(color.FgCyan)
	var category achievement.Category
	for _, d := range defs {
		if d.Category != category {
			category = d.Category
			cyan.Fprintf(p.Out, "%s\n", strings.ToUpper(string(category)))
		}
		fmt.Fprintf(p.Out, "  %-18s %-20s %s\n", d.ID, d.Name, d.Description)
	}
	return nil
}

// progressBar draws a 20-cell bar for a percentage in [0, 100].
func progressBar(progress float64) string {
	filled := int(progress / 5)
	if filled > 20 {
		filled = 20
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat(" ", 20-filled) + "]"
}

func formatValue(s achievement.State) string {
	return fmt.Sprintf("%g / %g %s", math.Round(s.CurrentValue*10)/10, s.Requirement, s.Unit)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
