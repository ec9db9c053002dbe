package connectjson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecKeepsCodeCharacters(t *testing.T) {
	data, err := Codec{}.Marshal(map[string]string{"token": "if a < b && c > d {"})
	require.NoError(t, err)
	require.Equal(t, `{"token":"if a < b && c > d {"}`, string(data))

	var out map[string]string
	require.NoError(t, Codec{}.Unmarshal(data, &out))
	require.Equal(t, "if a < b && c > d {", out["token"])
}
