// Package matcher runs a probe template against every entry of the template
// store using the device's match primitive.
package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"facegate/internal/device"
	"facegate/internal/logging"
	"facegate/internal/templatestore"
)

// Comparer is the device match primitive.
type Comparer interface {
	Match(ctx context.Context, probe, stored device.Template) (device.MatchResult, error)
}

// Source is the scan surface of the template store.
type Source interface {
	ResetScan()
	Next() (templatestore.Entry, bool)
	Replace(identity string, tpl device.Template) bool
}

// UpdatePolicy decides what happens to refined templates returned by a match.
type UpdatePolicy int

const (
	// DiscardUpdates releases refined templates without storing them.
	DiscardUpdates UpdatePolicy = iota
	// ApplyUpdates replaces the stored template when the device asks for it.
	ApplyUpdates
)

// Result describes a scan.
type Result struct {
	Matched     bool
	Identity    string
	Comparisons int
	// Updated is set when a refined template replaced the stored one.
	Updated bool
}

// Engine performs linear matches against a Source.
type Engine struct {
	source Source
	policy UpdatePolicy
	logger *slog.Logger
}

// New builds an engine over source.
func New(source Source, policy UpdatePolicy, logger *slog.Logger) *Engine {
	return &Engine{
		source: source,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "matcher"),
	}
}

// MatchAgainstStore compares probe with each stored template from the first
// entry onwards and stops at the first success. The probe stays owned by the
// caller; every template obtained during the scan is released here.
func (e *Engine) MatchAgainstStore(ctx context.Context, cmp Comparer, probe device.Template) (Result, error) {
	e.source.ResetScan()
	var result Result
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("match: %w", err)
		}
		entry, done := e.source.Next()
		if done {
			e.logger.Debug("no match in template database", logging.Int("comparisons", result.Comparisons))
			return result, nil
		}

		outcome, err := cmp.Match(ctx, probe, entry.Template)
		entry.Template.Release()
		result.Comparisons++
		if err != nil {
			outcome.Updated.Release()
			return result, fmt.Errorf("match against %q: %w", entry.Identity, err)
		}
		if !outcome.Success {
			outcome.Updated.Release()
			continue
		}

		result.Matched = true
		result.Identity = entry.Identity
		if e.policy == ApplyUpdates && outcome.ShouldUpdate && !outcome.Updated.Empty() {
			result.Updated = e.source.Replace(entry.Identity, outcome.Updated)
		}
		outcome.Updated.Release()
		e.logger.Debug("template matched",
			logging.String(logging.FieldIdentity, entry.Identity),
			logging.Int("comparisons", result.Comparisons),
			logging.Bool("template_updated", result.Updated))
		return result, nil
	}
}
