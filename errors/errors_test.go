package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsObjectNotFound(t *testing.T) {
	err := NewObjectNotFoundError("foo", fmt.Errorf("bar"))
	require.True(t, IsObjectNotFound(err))
	require.False(t, IsUnretriable(err))
}

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
	require.False(t, IsObjectNotFound(err))
}
