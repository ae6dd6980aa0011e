package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeValidate(t *testing.T) {
	valid := []DateRange{
		{},
		{From: "2024-01-01"},
		{To: "2024-06-30"},
		{From: "2024-01-01", To: "2024-06-30"},
		{From: "2024-01-01", To: "2024-01-01"},
	}
	for _, r := range valid {
		assert.NoError(t, r.Validate(), "%+v", r)
	}

	err := DateRange{From: "01/02/2024"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from")

	err = DateRange{To: "June 30th"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to")

	// a real calendar date is required, not just the right shape
	require.Error(t, DateRange{From: "2024-13-40"}.Validate())

	err = DateRange{From: "2024-06-30", To: "2024-01-01"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before it starts")
}
