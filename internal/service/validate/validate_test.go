package validate

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func Test_New(t *testing.T) {
	t.Parallel()

	type request struct {
		FullName string `json:"fullname" validate:"notblank"`
		Email    string `json:"email" validate:"required,email"`
		Internal string `json:"-" validate:"required"`
	}

	t.Run("valid", func(t *testing.T) {
		err := New().Struct(request{FullName: "Nikita", Email: "nk@example.com", Internal: "x"})

		require.NoError(t, err)
	})

	t.Run("json field names", func(t *testing.T) {
		err := New().Struct(request{FullName: "   ", Email: "nope", Internal: "x"})

		var errs validator.ValidationErrors
		require.True(t, errors.As(err, &errs))

		fields := map[string]string{}
		for _, fe := range errs {
			fields[fe.Field()] = fe.Tag()
		}
		require.Equal(t, map[string]string{"fullname": "notblank", "email": "email"}, fields)
	})
}
