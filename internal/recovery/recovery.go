package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/clerk/internal/queue"
)

// Policy controls retry pacing. Delay for attempt n (0-indexed) is
// BaseDelay * 2^n, capped at MaxDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy matches the pipeline defaults: three retries starting at
// one second, capped at a minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Delay returns the backoff delay before retry attempt n.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// RetryError is the structured failure a retry loop returns once its budget
// is exhausted. Callers branch on the data rather than re-parsing messages;
// Unwrap exposes the original cause.
type RetryError struct {
	Component string
	Attempts  int
	Err       error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Component, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Coordinator owns retry execution and durable failure artifacts for the
// pipeline: a per-component error log, structured error reports, and
// manual-action drafts a human can pick up without reading logs.
type Coordinator struct {
	dirs   queue.Dirs
	policy Policy
	log    *slog.Logger

	// Injected for tests; production uses the real clock.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewCoordinator creates a coordinator writing under the given layout.
func NewCoordinator(dirs queue.Dirs, policy Policy, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		dirs:   dirs,
		policy: policy,
		log:    logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Retry runs op with exponential backoff. Every failed attempt is recorded
// in the component's error log; when the budget is exhausted the returned
// error is a *RetryError wrapping the last failure. Context cancellation
// aborts between attempts.
func (c *Coordinator) Retry(ctx context.Context, component string, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &RetryError{Component: component, Attempts: attempt, Err: err}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		c.LogError(component, lastErr, map[string]string{
			"attempt": fmt.Sprintf("%d", attempt),
		})

		if attempt < c.policy.MaxRetries {
			delay := c.policy.Delay(attempt)
			c.log.Warn("retrying after failure",
				"component", component,
				"attempt", attempt+1,
				"max", c.policy.MaxRetries,
				"delay", delay,
				"err", lastErr)
			c.sleep(delay)
		}
	}

	return &RetryError{
		Component: component,
		Attempts:  c.policy.MaxRetries + 1,
		Err:       lastErr,
	}
}

// LogError appends a structured block to the component's dated error log.
// Logging must never take the pipeline down, so failures here only reach
// the process log.
func (c *Coordinator) LogError(component string, opErr error, context map[string]string) {
	now := c.now()
	path := filepath.Join(c.dirs.Logs,
		fmt.Sprintf("error_%s_%s.log", component, now.Format("20060102")))

	var b strings.Builder
	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Component: %s\n", component)
	fmt.Fprintf(&b, "Error: %v\n", opErr)
	if len(context) > 0 {
		b.WriteString("Context:\n")
		for _, k := range sortedKeys(context) {
			fmt.Fprintf(&b, "  %s: %s\n", k, context[k])
		}
	}
	b.WriteString("---\n")

	if err := appendFile(path, b.String()); err != nil {
		c.log.Error("failed to write error log", "path", path, "err", err)
	}
}

func appendFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(text)
	return err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
