package module

import (
	"errors"
	"fmt"
)

// Kind is the tag of an Outcome.
type Kind int

const (
	// KindNoActionNeeded means the module's precondition was false. It is not an error.
	KindNoActionNeeded Kind = iota
	// KindSuccess means every side effect of the module was applied.
	KindSuccess
	// KindFailed means at least one underlying call failed.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailed:
		return "failed"
	default:
		return "no_action_needed"
	}
}

// Outcome is the result of running one module against one ticket.
type Outcome struct {
	kind    Kind
	errs    []error
	applied int
}

// Success reports that the module applied its side effects.
func Success() Outcome {
	return Outcome{kind: KindSuccess}
}

// NoActionNeeded reports that the module had nothing to do.
func NoActionNeeded() Outcome {
	return Outcome{kind: KindNoActionNeeded}
}

// Failed reports that the module failed with the given causes.
func Failed(errs ...error) Outcome {
	return FailedAfter(0, errs...)
}

// FailedAfter reports a failure that happened after applied side effects had already succeeded.
func FailedAfter(applied int, errs ...error) Outcome {
	kept := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, errors.New("module failed without a cause"))
	}
	return Outcome{kind: KindFailed, errs: kept, applied: applied}
}

// Kind returns which of the three outcomes this is.
func (o Outcome) Kind() Kind { return o.kind }

// Errors returns the causes of a failed outcome.
func (o Outcome) Errors() []error { return o.errs }

// Applied returns how many side effects succeeded before a failure.
func (o Outcome) Applied() int { return o.applied }

// IsSuccess reports whether every side effect was applied.
func (o Outcome) IsSuccess() bool { return o.kind == KindSuccess }

func (o Outcome) String() string {
	if o.kind == KindFailed {
		return fmt.Sprintf("failed(%v)", errors.Join(o.errs...))
	}
	return o.kind.String()
}

// effects accumulates the results of a module's side effects.
type effects struct {
	applied int
	errs    []error
}

// do records the result of one side effect and reports whether it succeeded.
func (e *effects) do(err error) bool {
	if err != nil {
		e.errs = append(e.errs, err)
		return false
	}
	e.applied++
	return true
}

func (e *effects) failed() bool {
	return len(e.errs) > 0
}

func (e *effects) outcome() Outcome {
	if e.failed() {
		return FailedAfter(e.applied, e.errs...)
	}
	if e.applied == 0 {
		return NoActionNeeded()
	}
	return Success()
}
