package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// DetectDrift compares the controller's records against live external state.
// For every connected unit the unit key, tenant identity, token secret, and
// instance must remain in 1:1:1:1 correspondence; any deviation is reported
// as a warning requiring manual reconciliation, never auto-healed.
func (c *Controller) DetectDrift(ctx context.Context) ([]DriftWarning, error) {
	current, err := c.cfg.State.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current state: %w", err)
	}

	var warnings []DriftWarning
	warn := func(key interfaces.UnitKey, format string, args ...interface{}) {
		detail := fmt.Sprintf(format, args...)
		warnings = append(warnings, DriftWarning{Key: key, Detail: detail})
		c.log.Warn("State drift detected",
			slog.String("key", key.String()),
			slog.String("detail", detail))
	}

	for key, rec := range current {
		if !rec.Registered {
			continue
		}

		if rec.PublisherID != "" {
			identity, err := c.cfg.Tenant.GetPublisher(ctx, rec.PublisherID)
			switch {
			case errors.Is(err, interfaces.ErrNotFound):
				warn(key, "publisher identity %s no longer exists in tenant", rec.PublisherID)
			case err != nil:
				return warnings, fmt.Errorf("failed to check publisher %s: %w", rec.PublisherID, err)
			case identity.Status == interfaces.PublisherDisconnected:
				warn(key, "publisher %s is disconnected", rec.PublisherID)
			}
		}

		if _, err := c.cfg.Compute.Find(ctx, key); errors.Is(err, interfaces.ErrNotFound) {
			warn(key, "instance %s no longer exists", rec.InstanceID)
		} else if err != nil {
			return warnings, fmt.Errorf("failed to check instance for %s: %w", key, err)
		}

		if _, err := c.cfg.Secrets.GetSecret(ctx, rec.SecretPath, false); errors.Is(err, interfaces.ErrNotFound) {
			warn(key, "token secret at %s no longer exists", rec.SecretPath)
		}
	}

	return warnings, nil
}
