package resilience

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransient(fmt.Errorf("pool timeout")), true},
		{"wrapped transient", eris.Wrap(NewTransient(fmt.Errorf("x")), "store: commit"), true},
		{"validation", NewValidationError("period", "empty"), false},
		{"policy", &PolicyViolation{Rule: "separation_of_duties", Detail: "same actor"}, false},
		{"integrity", &IntegrityError{EntryID: "abc", Detail: "checksum mismatch"}, false},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"sqlite busy", fmt.Errorf("step: database is locked (5) (SQLITE_BUSY)"), true},
		{"pg conn closed", fmt.Errorf("write failed: conn closed"), true},
		{"plain error", fmt.Errorf("constraint violation"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "period: malformed", NewValidationError("period", "malformed").Error())
	assert.Equal(t, "no fields", (&ValidationError{Reason: "no fields"}).Error())
}

func TestIsPolicyViolation(t *testing.T) {
	err := eris.Wrap(&PolicyViolation{Rule: "separation_of_duties", Detail: "reviewer == approver"}, "recommend: approve")
	assert.True(t, IsPolicyViolation(err))
	assert.False(t, IsPolicyViolation(fmt.Errorf("other")))
}

func TestIsIntegrity(t *testing.T) {
	err := eris.Wrap(&IntegrityError{EntryID: "e1", Detail: "recomputed checksum differs"}, "ledger: verify")
	assert.True(t, IsIntegrity(err))
	assert.False(t, IsIntegrity(NewValidationError("x", "y")))
}
