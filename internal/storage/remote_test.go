package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
)

func TestWrapRemoteErr_Classification(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnreachable bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("server selection: %w", context.DeadlineExceeded), true},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"plain data error", errors.New("duplicate key"), false},
		{"os error", os.ErrPermission, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapRemoteErr("op", tt.err)
			if got := errors.Is(wrapped, ErrUnreachable); got != tt.wantUnreachable {
				t.Errorf("errors.Is(ErrUnreachable) = %v, want %v for %v", got, tt.wantUnreachable, tt.err)
			}
		})
	}
}
