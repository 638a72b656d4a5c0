package lmsclient

import (
	"context"
	"time"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

// AwaitOptions tunes AwaitFeeCatalog.
type AwaitOptions struct {
	InitialDelay time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// DefaultAwaitOptions mirrors the delays used after a class change.
var DefaultAwaitOptions = AwaitOptions{
	InitialDelay: time.Second,
	MaxAttempts:  5,
	BaseDelay:    500 * time.Millisecond,
	MaxDelay:     8 * time.Second,
}

func (o AwaitOptions) withDefaults() AwaitOptions {
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultAwaitOptions.MaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultAwaitOptions.BaseDelay
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	return o
}

func (o AwaitOptions) delay(attempt int) time.Duration {
	d := o.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= o.MaxDelay {
			return o.MaxDelay
		}
	}
	return d
}

// AwaitFeeCatalog waits for a student's catalog to become complete.
//
// The server regenerates fees in the same transaction as a class change, so
// the first poll normally succeeds. When it does not, the catalog is polled
// with exponential backoff, then generation is requested explicitly (a
// conflict means another writer already produced the schedule) and the
// catalog is fetched one final time.
func (c *Client) AwaitFeeCatalog(ctx context.Context, studentID, sessionID string, opts AwaitOptions) (*models.FeeCatalog, error) {
	opts = opts.withDefaults()

	if err := c.sleep(ctx, opts.InitialDelay); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		catalog, err := c.GetFeeCatalog(ctx, studentID, sessionID)
		switch {
		case err == nil && catalog.Consistent():
			return catalog, nil
		case err != nil && !retryable(err):
			return nil, err
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, opts.delay(attempt)); err != nil {
			return nil, err
		}
	}

	catalog, err := c.GenerateFees(ctx, studentID, sessionID)
	switch {
	case err == nil && catalog.Consistent():
		return catalog, nil
	case err != nil && !IsConflict(err):
		return nil, err
	}
	return c.GetFeeCatalog(ctx, studentID, sessionID)
}

func retryable(err error) bool {
	switch KindOf(err) {
	case KindUnknown, KindNotFound:
		return true
	default:
		return false
	}
}
