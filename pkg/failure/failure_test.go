package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{name: "nil", err: nil, fallback: "x", want: ""},
		{name: "validation", err: Validation("empty cart"), fallback: "x", want: "empty cart"},
		{name: "rejection with detail", err: Rejection(401, "Invalid credentials"), fallback: "Login failed", want: "Invalid credentials"},
		{name: "rejection without detail", err: Rejection(500, "  "), fallback: "Login failed", want: "Login failed"},
		{name: "transport", err: Transport(errors.New("dial tcp: refused")), fallback: "Failed to fetch orders", want: "Failed to fetch orders"},
		{name: "wrapped rejection", err: fmt.Errorf("create order: %w", Rejection(404, "Product not found")), fallback: "x", want: "Product not found"},
		{name: "foreign error", err: errors.New("boom"), fallback: "generic", want: "generic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err, tt.fallback))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("x")))
	assert.Equal(t, KindRejection, KindOf(fmt.Errorf("wrap: %w", Rejection(400, "bad"))))
	assert.Equal(t, KindTransport, KindOf(Transport(errors.New("down"))))
	assert.Equal(t, KindTransport, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindAuthExpiry, KindOf(AuthExpiry(Rejection(401, ""))))
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))

	assert.True(t, IsValidation(Validation("x")))
	assert.True(t, IsRejection(Rejection(409, "")))
	assert.True(t, IsTransport(Transport(nil)))
	assert.Equal(t, 409, StatusOf(Rejection(409, "")))
	assert.Equal(t, 0, StatusOf(errors.New("x")))
}

func TestSentinelIdentity(t *testing.T) {
	sentinel := Validation("missing customer info")
	wrapped := fmt.Errorf("submit: %w", sentinel)
	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, wrapped, Validation("missing customer info"))
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "rejection 404: gone", Rejection(404, "gone").Error())
	assert.Equal(t, "rejection 500", Rejection(500, "").Error())
	assert.Equal(t, "empty cart", Validation("empty cart").Error())
	assert.Equal(t, "transport: down", Transport(errors.New("down")).Error())
}
