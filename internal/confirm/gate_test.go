package confirm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk_DefaultsToYes(t *testing.T) {
	gate := New(strings.NewReader("\n"), &bytes.Buffer{})

	d, err := gate.Ask("capture /etc?")

	require.NoError(t, err)
	assert.Equal(t, Yes, d)
}

func TestAsk_RecognizedAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  Decision
	}{
		{"y\n", Yes},
		{"YES\n", Yes},
		{"n\n", No},
		{"no\n", No},
		{"a\n", YesToAll},
		{"All\n", YesToAll},
	}

	for _, tt := range tests {
		gate := New(strings.NewReader(tt.input), &bytes.Buffer{})

		d, err := gate.Ask("capture /etc?")

		require.NoError(t, err)
		assert.Equal(t, tt.want, d, "input %q", tt.input)
	}
}

func TestAsk_RepromptsOnGarbage(t *testing.T) {
	out := &bytes.Buffer{}
	gate := New(strings.NewReader("maybe\nn\n"), out)

	d, err := gate.Ask("capture /etc?")

	require.NoError(t, err)
	assert.Equal(t, No, d)
	assert.Contains(t, out.String(), "please answer")
}

func TestAsk_EOF(t *testing.T) {
	gate := New(strings.NewReader(""), &bytes.Buffer{})

	_, err := gate.Ask("capture /etc?")

	assert.Error(t, err)
}

func TestConfirm_DefaultsToNo(t *testing.T) {
	gate := New(strings.NewReader("\n"), &bytes.Buffer{})

	ok, err := gate.Confirm("overwrite /dev/sda?")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirm_ExplicitYes(t *testing.T) {
	gate := New(strings.NewReader("yes\n"), &bytes.Buffer{})

	ok, err := gate.Confirm("overwrite /dev/sda?")

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAssumeYes_NeverConfirmsDestructive(t *testing.T) {
	gate := AssumeYes{}

	d, err := gate.Ask("capture /etc?")
	require.NoError(t, err)
	assert.Equal(t, Yes, d)

	ok, err := gate.Confirm("overwrite /dev/sda?")
	require.NoError(t, err)
	assert.False(t, ok)
}
