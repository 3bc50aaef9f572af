package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
)

type sample struct {
	HolderName  string `validate:"required,notblank"`
	ValidMonths *int   `validate:"omitempty,min=1,max=12"`
}

func TestValidate(t *testing.T) {
	n := func(v int) *int { return &v }

	cases := []struct {
		name string
		req  sample
		msg  string
	}{
		{name: "missing", req: sample{}, msg: "holder_name is required"},
		{name: "blank", req: sample{HolderName: "   "}, msg: "holder_name must not be blank"},
		{name: "below min", req: sample{HolderName: "Ada", ValidMonths: n(0)}, msg: "valid_months must be at least 1"},
		{name: "above max", req: sample{HolderName: "Ada", ValidMonths: n(13)}, msg: "valid_months must be at most 12"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			assert.Equal(t, tc.msg, err.Error())
		})
	}

	assert.NoError(t, Validate(sample{HolderName: "Ada"}))
	assert.NoError(t, Validate(sample{HolderName: "Ada", ValidMonths: n(6)}))
}
