package controller

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/seedbrake/config"
	"github.com/s0up4200/seedbrake/metrics"
	"github.com/s0up4200/seedbrake/qbittorrent"
	"github.com/s0up4200/seedbrake/store"
)

// applyLimited pushes the limited pair to every enabled target concurrently.
// The actuator retries each target itself; a target that still fails gets
// one failure record. The mode has already switched either way.
func (c *Controller) applyLimited(ctx context.Context) error {
	return c.forEachTarget(ctx, c.enabledTargets(), func(ctx context.Context, tc config.TargetConfig) error {
		t := qbittorrent.TargetFromConfig(tc)

		err := c.deps.Actuator.ApplyLimits(ctx, t, c.limited)
		metrics.RecordActuation(t.Name, store.ActionLimit, err == nil)
		if err == nil {
			return nil
		}

		c.logger.Error().Err(err).Str("target", t.Name).Msg("Failed to apply limited speeds")
		return c.recordFailure(t, store.ActionLimit, c.limited, err, "")
	})
}

// restoreAll runs the restore path for every target concurrently.
func (c *Controller) restoreAll(ctx context.Context, targets []config.TargetConfig, action string) error {
	return c.forEachTarget(ctx, targets, func(ctx context.Context, tc config.TargetConfig) error {
		return c.restore(ctx, qbittorrent.TargetFromConfig(tc), action)
	})
}

// restore applies the normal limits with an extra retry layer on top of the
// actuator's own retries, dropping the session between attempts. If every
// attempt fails the target is probed, a failure record is written and an
// operator alert is logged.
func (c *Controller) restore(ctx context.Context, t qbittorrent.Target, action string) error {
	var lastErr error

	for attempt := 1; attempt <= c.restoreAttempts; attempt++ {
		if attempt > 1 {
			c.deps.Actuator.ResetSession(t)
		}

		lastErr = c.deps.Actuator.ApplyLimits(ctx, t, c.normal)
		metrics.RecordActuation(t.Name, action, lastErr == nil)
		if lastErr == nil {
			if attempt > 1 {
				c.logger.Info().Str("target", t.Name).Int("attempt", attempt).Msg("Full speed restored after retry")
			}
			return nil
		}

		c.logger.Warn().
			Err(lastErr).
			Str("target", t.Name).
			Int("attempt", attempt).
			Int("max_attempts", c.restoreAttempts).
			Msg("Failed to restore full speed")

		if attempt == c.restoreAttempts {
			break
		}
		if err := c.pause(ctx, c.retryInterval); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	probe := c.deps.Actuator.Probe(ctx, t)
	verdict := string(probe.Verdict)
	if probe.Error != "" {
		verdict = fmt.Sprintf("%s: %s", probe.Verdict, probe.Error)
	}

	c.logger.Error().
		Err(lastErr).
		Str("target", t.Name).
		Str("probe", string(probe.Verdict)).
		Msg("Manual intervention required: target is still throttled")

	return c.recordFailure(t, action, c.normal, lastErr, verdict)
}

// recordFailure appends a ledger entry and returns the actuation error,
// joined with the ledger error if the entry could not be written.
func (c *Controller) recordFailure(t qbittorrent.Target, action string, limits qbittorrent.Limits, cause error, probe string) error {
	rec := store.FailureRecord{
		Target:   t.Name,
		Action:   action,
		Download: limits.Download,
		Upload:   limits.Upload,
		Reason:   cause.Error(),
		Probe:    probe,
	}

	metrics.RecordFailure(t.Name, action)
	if _, err := c.deps.Failures.Append(rec); err != nil {
		c.logger.Error().Err(err).Str("target", t.Name).Msg("Failed to write failure record")
		return errors.Join(cause, err)
	}
	return cause
}

// forEachTarget runs fn for every target concurrently and joins the errors.
// One target's failure never stops the others.
func (c *Controller) forEachTarget(ctx context.Context, targets []config.TargetConfig, fn func(context.Context, config.TargetConfig) error) error {
	errs := make([]error, len(targets))

	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			errs[i] = fn(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
