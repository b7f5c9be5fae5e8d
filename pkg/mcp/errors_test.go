package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped cancelled", fmt.Errorf("call: %w", context.Canceled), true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"net closed", net.ErrClosed, true},
		{"connection refused string", errors.New("dial tcp: connection refused"), true},
		{"broken pipe string", errors.New("write: Broken Pipe"), true},
		{"jsonrpc invalid params", &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "bad args"}, false},
		{"plain tool failure", errors.New("bucket does not exist"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransportError(tt.err))
		})
	}
}
