package sl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretMasksValue(t *testing.T) {
	assert.Equal(t, "MTIzN***", Secret("token", "MTIzNDU2Nzg5").Value.String())
	assert.Equal(t, "***", Secret("token", "abc").Value.String())
	assert.Equal(t, "?", Secret("token", "").Value.String())
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())
}
