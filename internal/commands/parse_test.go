package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIntents(t *testing.T) {
	cases := []struct {
		text string
		want Command
	}{
		{
			text: "crea el archivo index.html con contenido: '<h1>Hola</h1>'",
			want: Command{Intent: IntentCreate, Filename: "index.html", Content: "<h1>Hola</h1>"},
		},
		{
			text: "modifica el archivo 'app.js' y agrega 'console.log(1)'",
			want: Command{Intent: IntentModify, Filename: "app.js", Content: "console.log(1)"},
		},
		{
			text: "elimina el archivo viejo.txt",
			want: Command{Intent: IntentDelete, Filename: "viejo.txt"},
		},
		{
			text: "muestra el archivo main.go",
			want: Command{Intent: IntentShow, Filename: "main.go"},
		},
		{
			text: "ejecuta 'ls -la'",
			want: Command{Intent: IntentExecute, ShellCommand: "ls -la"},
		},
		{
			text: "ejecuta el comando npm install",
			want: Command{Intent: IntentExecute, ShellCommand: "npm install"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := Parse(tc.text)
			require.NoError(t, err)
			tc.want.Text = tc.text
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseMissingArguments(t *testing.T) {
	_, err := Parse("hola, ¿qué tal?")
	require.ErrorIs(t, err, ErrNoIntent)

	_, err = Parse("crea una api rest para usuarios")
	require.ErrorIs(t, err, ErrNoFilename)

	_, err = Parse("crea el archivo notas.txt")
	require.ErrorIs(t, err, ErrNoContent)

	_, err = Parse("ejecuta")
	require.ErrorIs(t, err, ErrNoCommand)
}

func TestDetectIntentOrder(t *testing.T) {
	require.Equal(t, IntentModify, DetectIntent("Actualiza y luego muestra"))
	require.Equal(t, IntentCreate, DetectIntent("genera un nuevo archivo"))
	require.Equal(t, Intent(""), DetectIntent("hola"))
}
