package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"balance-telemetry/internal/alerting"
	"balance-telemetry/internal/model"
	"balance-telemetry/internal/remediation"
)

// PurgeAnomalies runs the detect/confirm/purge loop against the history store.
func (a *App) PurgeAnomalies(ctx context.Context, in io.Reader, out io.Writer, opts PurgeOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cfg := a.Config.Remediation
	remOpts := remediation.Options{
		Thresholds:    cfg.Thresholds,
		PageSize:      cfg.PageSize,
		MaxIterations: cfg.MaxIterations,
		LockKey:       cfg.AdvisoryLockKey,
	}
	if opts.StableDelta > 0 {
		remOpts.Thresholds.StableDelta = opts.StableDelta
	}
	if opts.TokenDelta > 0 {
		remOpts.Thresholds.TokenDelta = opts.TokenDelta
	}
	if opts.PageSize > 0 {
		remOpts.PageSize = opts.PageSize
	}
	if opts.MaxIterations > 0 {
		remOpts.MaxIterations = opts.MaxIterations
	}

	rem := remediation.New(store, promptConfirmer(in, out, opts.Yes), store, remOpts, a.Logger)
	report, runErr := rem.Run(ctx)
	if report.Finished.IsZero() {
		return runErr
	}

	switch {
	case report.Declined:
		fmt.Fprintln(out, "purge declined; nothing deleted")
	default:
		fmt.Fprintf(out, "%s: removed %d snapshot(s) in %d iteration(s)\n", report.Outcome, report.Removed, report.Iterations)
	}

	if notifier := a.newNotifier(); notifier != nil {
		if err := notifier.Notify(ctx, reportNotification(report, remOpts.Thresholds)); err != nil {
			a.Logger.Error().Err(err).Msg("failed to dispatch remediation report")
		}
	}

	return runErr
}

func reportNotification(report remediation.Report, thresholds model.Thresholds) alerting.Notification {
	return alerting.Notification{
		RunID:      report.RunID.String(),
		Outcome:    report.Outcome.String(),
		Removed:    report.Removed,
		Iterations: report.Iterations,
		Declined:   report.Declined,
		Thresholds: thresholds,
		Finished:   report.Finished,
		Err:        report.Err,
	}
}

// promptConfirmer asks once on out and reads a y/N answer from in.
func promptConfirmer(in io.Reader, out io.Writer, assumeYes bool) remediation.Confirmer {
	reader := bufio.NewReader(in)
	return remediation.ConfirmFunc(func(ctx context.Context, prompt remediation.Prompt) (bool, error) {
		fmt.Fprintf(out, "Found %d anomalous snapshot(s) in the first page:\n", len(prompt.Candidates))
		fmt.Fprint(out, remediation.Describe(prompt.Candidates, 20))
		if assumeYes {
			fmt.Fprintln(out, "--yes given; deleting without prompt")
			return true, nil
		}
		fmt.Fprint(out, "Delete them and keep purging until clean? This cannot be undone [y/N]: ")

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		if errors.Is(err, io.EOF) && line == "" {
			fmt.Fprintln(out)
			return false, fmt.Errorf("no answer on closed input: %w", model.ErrConfirmationDeclined)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}
