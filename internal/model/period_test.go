package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"2025-Q1", "2025-Q1", false},
		{"2025-q3", "2025-Q3", false},
		{"2025-03", "2025-03", false},
		{" 2025-11 ", "2025-11", false},
		{"2025-3", "2025-03", false},
		{"", "", true},
		{"2025", "", true},
		{"2025-Q5", "", true},
		{"2025-13", "", true},
		{"25-01", "", true},
		{"abcd-01", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPeriod_StartTime(t *testing.T) {
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Period("2025-Q2").StartTime())
	assert.Equal(t, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), Period("2025-11").StartTime())
}

func TestPeriod_Next(t *testing.T) {
	assert.Equal(t, Period("2025-Q2"), Period("2025-Q1").Next())
	assert.Equal(t, Period("2026-Q1"), Period("2025-Q4").Next())
	assert.Equal(t, Period("2025-02"), Period("2025-01").Next())
	assert.Equal(t, Period("2026-01"), Period("2025-12").Next())
}

func TestPeriod_Contiguous(t *testing.T) {
	assert.True(t, Period("2025-01").Contiguous("2025-02"))
	assert.False(t, Period("2025-01").Contiguous("2025-03"))
	assert.False(t, Period("2025-Q1").Contiguous("2025-02"))
}

func TestPeriod_Before(t *testing.T) {
	assert.True(t, Period("2024-12").Before("2025-01"))
	assert.True(t, Period("2025-Q1").Before("2025-Q2"))
	assert.False(t, Period("2025-Q2").Before("2025-Q2"))
}
