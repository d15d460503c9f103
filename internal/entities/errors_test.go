package entities

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDependencyErrorMatchesSentinels(t *testing.T) {
	timeout := &DependencyError{Dependency: "reasoningProvider", Kind: KindTimeout}
	wrapped := fmt.Errorf("complete: %w", timeout)

	assert.True(t, errors.Is(wrapped, ErrDependencyTimeout))
	assert.False(t, errors.Is(wrapped, ErrDependencyUnavailable))

	open := &DependencyError{Dependency: "persistence", Kind: KindUnavailable, Err: errors.New("circuit open")}
	assert.True(t, errors.Is(open, ErrDependencyUnavailable))
	assert.Contains(t, open.Error(), "circuit open")
}

func TestClassificationWarningUnwraps(t *testing.T) {
	cause := errors.New("db down")
	w := &ClassificationWarning{Phone: "628123", Err: cause}

	assert.ErrorIs(t, w, cause)
	assert.Contains(t, w.Error(), "defaulted to customer")
}

func TestSenderRoleCanOperate(t *testing.T) {
	assert.True(t, RoleOperator.CanOperate())
	assert.True(t, RoleStaff.CanOperate())
	assert.False(t, RoleCustomer.CanOperate())
}
