// Package batch groups an unbounded element stream into finite batches
// according to a size/latency policy.
package batch

import "time"

// Policy holds the tunable batching knobs.
type Policy struct {
	// MinSize is the smallest batch the accumulator will emit on a wait
	// timeout. A final flush at stream end may still be smaller.
	MinSize int
	// MaxSize caps the number of elements per batch.
	MaxSize int
	// MaxWait bounds how long a partial batch may sit before flushing.
	MaxWait time.Duration
}

// DefaultPolicy returns the accumulator-owned defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinSize: 1,
		MaxSize: 32,
		MaxWait: 50 * time.Millisecond,
	}
}

// Overrides selectively replaces policy knobs. Zero-valued fields keep
// the base policy's value.
type Overrides struct {
	MinSize int
	MaxSize int
	MaxWait time.Duration
}

// Apply layers the overrides over base and normalizes the result so that
// MaxSize is never below MinSize.
func (o Overrides) Apply(base Policy) Policy {
	p := base
	if o.MinSize > 0 {
		p.MinSize = o.MinSize
	}
	if o.MaxSize > 0 {
		p.MaxSize = o.MaxSize
	}
	if o.MaxWait > 0 {
		p.MaxWait = o.MaxWait
	}
	if p.MaxSize < p.MinSize {
		p.MaxSize = p.MinSize
	}
	return p
}

// PolicyProvider is implemented by model loaders that mandate batching
// overrides, e.g. a large minimum batch for a runner that needs bulk
// input. Overrides are read once, before the first batch is formed.
type PolicyProvider interface {
	BatchPolicy() Overrides
}

// PolicyFor resolves the effective policy for v: the defaults, overlaid
// with v's overrides when v declares any.
func PolicyFor(v any) Policy {
	if p, ok := v.(PolicyProvider); ok {
		return p.BatchPolicy().Apply(DefaultPolicy())
	}
	return DefaultPolicy()
}
