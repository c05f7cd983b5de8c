package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Username string `json:"discordUsername" validate:"required"`
	Code     string `json:"code" validate:"omitempty,numeric"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(&sample{})
	assert.EqualError(t, err, "discordUsername required")

	err = Struct(sample{Username: "alice", Code: "12a"})
	assert.EqualError(t, err, "code numeric")

	assert.NoError(t, Struct(&sample{Username: "alice", Code: "123456"}))
}

func TestStructRejectsNonStruct(t *testing.T) {
	assert.EqualError(t, Struct(nil), "is nil")
	assert.EqualError(t, Struct("alice"), "not a struct")
}
