// Package multierr collects errors from cleanup paths that must keep going
// after a failure, such as closing every producer of a transport.
package multierr

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

type MultiErr struct {
	errs []error
}

func New() *MultiErr {
	return &MultiErr{}
}

// Add ignores nil errors.
func (m *MultiErr) Add(err error) {
	if err != nil {
		m.errs = append(m.errs, err)
	}
}

// Len returns the number of collected errors.
func (m *MultiErr) Len() int {
	return len(m.errs)
}

// Err returns nil when nothing was collected and the error itself when only
// one was. Otherwise it returns a new error listing the stack of each one.
func (m *MultiErr) Err() error {
	switch len(m.errs) {
	case 0:
		return nil
	case 1:
		return m.errs[0]
	}

	var sb strings.Builder

	for i, err := range m.errs {
		if i > 0 {
			sb.WriteString("\n")
		}

		fmt.Fprintf(&sb, "%d. %s", i+1, errors.ErrorStack(err))
	}

	return errors.Errorf("%d errors occurred:\n%s", len(m.errs), sb.String())
}

// Is reports whether the cause of err, as recorded by juju/errors, matches
// target.
func Is(err, target error) bool {
	return stderrors.Is(errors.Cause(err), target)
}
