package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("api-key=secret, team = platform ,malformed,=nokey")
	require.Equal(t, map[string]string{
		"api-key": "secret",
		"team":    "platform",
	}, headers)
}
