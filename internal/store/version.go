package store

import (
	"fmt"
	"math"
)

// OverflowPolicy selects how a Version behaves when incrementing past the
// largest representable value.
type OverflowPolicy uint8

const (
	// Wrap rolls over to 1 after MaxVersionValue. It never rolls to 0.
	Wrap OverflowPolicy = iota
	// Saturate clamps at MaxVersionValue.
	Saturate
)

// MaxVersionValue is the largest value a Version can hold.
const MaxVersionValue = math.MaxUint32

// Version is a strictly-positive backup version counter. The zero value
// (raw value 0) is reserved to mean invalid/uninitialized; every valid
// counter is >= 1. Both overflow policies share the same field layout and
// serialize as the raw uint32 alone, so the policy is a call-site choice
// rather than part of the container format.
type Version struct {
	value  uint32
	policy OverflowPolicy
}

// NewVersion returns a valid Version starting at 1.
func NewVersion(policy OverflowPolicy) Version {
	return Version{value: 1, policy: policy}
}

// InvalidVersion returns the reserved invalid Version (raw value 0).
func InvalidVersion(policy OverflowPolicy) Version {
	return Version{policy: policy}
}

// versionWithValue rebuilds a Version from a raw value, as read from a
// decoded metadata block. It accepts 0 so corrupt metadata surfaces as an
// invalid counter rather than a panic during decode.
func versionWithValue(value uint32, policy OverflowPolicy) Version {
	return Version{value: value, policy: policy}
}

// IsValid reports whether the counter holds a usable (non-zero) value.
func (v Version) IsValid() bool { return v.value != 0 }

// Value returns the raw counter value.
func (v Version) Value() uint32 { return v.value }

// Policy returns the overflow policy this counter was constructed with.
func (v Version) Policy() OverflowPolicy { return v.policy }

// Increment advances the counter by one.
// It panics if called on an invalid counter; that is a programmer error,
// not a recoverable condition.
func (v *Version) Increment() { v.IncrementBy(1) }

// IncrementBy advances the counter by n, applying the overflow policy.
// Under Wrap a result of exactly 0 is coerced to 1. Under Saturate the
// counter clamps at MaxVersionValue and never routes through zero.
// It panics if called on an invalid counter.
func (v *Version) IncrementBy(n uint32) {
	if !v.IsValid() {
		panic("store: increment of invalid version")
	}
	switch v.policy {
	case Saturate:
		if n > MaxVersionValue-v.value {
			v.value = MaxVersionValue
			return
		}
		v.value += n
	default:
		wrapped := v.value + n
		if wrapped == 0 {
			wrapped = 1
		}
		v.value = wrapped
	}
}

// Decrement lowers the counter by one, clamping at 1.
// Decrement exists for completeness and testing; backups never decrement
// a version in normal operation.
func (v *Version) Decrement() { v.DecrementBy(1) }

// DecrementBy lowers the counter by n, clamping at 1 under both policies.
// It panics if called on an invalid counter.
func (v *Version) DecrementBy(n uint32) {
	if !v.IsValid() {
		panic("store: decrement of invalid version")
	}
	if n >= v.value {
		v.value = 1
		return
	}
	v.value -= n
}

// Equal reports whether two counters hold the same raw value,
// regardless of policy.
func (v Version) Equal(other Version) bool { return v.value == other.value }

// EqualValue reports whether the counter holds exactly the given raw value.
func (v Version) EqualValue(value uint32) bool { return v.value == value }

// Less reports whether v orders before other by raw value.
func (v Version) Less(other Version) bool { return v.value < other.value }

func (v Version) String() string { return fmt.Sprintf("%d", v.value) }
