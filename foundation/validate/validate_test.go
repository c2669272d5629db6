package validate_test

import (
	"fmt"
	"testing"

	"github.com/ardanlabs/powsim/foundation/validate"
	"github.com/stretchr/testify/require"
)

type rateRequest struct {
	Rate  float64 `json:"rate" validate:"gte=0"`
	Miner string  `json:"miner" validate:"required"`
}

func TestCheckPasses(t *testing.T) {
	err := validate.Check(rateRequest{Rate: 10, Miner: "miner_1"})
	require.NoError(t, err)
}

func TestCheckFieldErrors(t *testing.T) {
	err := validate.Check(rateRequest{Rate: -1})
	require.Error(t, err)
	require.True(t, validate.IsFieldErrors(err))

	fields := validate.GetFieldErrors(err).Fields()
	require.Len(t, fields, 2)
	require.Contains(t, fields, "rate")
	require.Contains(t, fields, "miner")
	require.Contains(t, fields["miner"], "required")
}

func TestGetFieldErrorsWrapped(t *testing.T) {
	err := validate.Check(rateRequest{Rate: 1})
	wrapped := fmt.Errorf("starting: %w", err)

	require.True(t, validate.IsFieldErrors(wrapped))
	require.Len(t, validate.GetFieldErrors(wrapped), 1)
	require.Nil(t, validate.GetFieldErrors(fmt.Errorf("plain")))
}
