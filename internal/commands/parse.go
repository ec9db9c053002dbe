// Package commands turns Spanish natural-language instructions into workspace
// actions and executes them.
package commands

import (
	"errors"
	"regexp"
	"strings"
)

// Intent names the action an instruction asks for.
type Intent string

const (
	IntentModify  Intent = "modify"
	IntentCreate  Intent = "create"
	IntentDelete  Intent = "delete"
	IntentExecute Intent = "execute"
	IntentShow    Intent = "show"
)

var (
	ErrNoIntent   = errors.New("no se pudo determinar la acción a realizar, sé más específico")
	ErrNoFilename = errors.New("no se pudo identificar el nombre del archivo")
	ErrNoContent  = errors.New("no se pudo identificar el contenido, inclúyelo entre comillas o después de 'contenido:'")
	ErrNoCommand  = errors.New("no se pudo identificar el comando a ejecutar")
)

// Command is a parsed instruction.
type Command struct {
	Text         string `json:"text"`
	Intent       Intent `json:"intent"`
	Filename     string `json:"filename,omitempty"`
	Content      string `json:"content,omitempty"`
	ShellCommand string `json:"command,omitempty"`
}

// checked in order; the first match wins
var intentPatterns = []struct {
	intent Intent
	re     *regexp.Regexp
}{
	{IntentModify, regexp.MustCompile(`(?i)modifica|edita|cambia|actualiza|agrega (?:en|a)|añade (?:en|a)`)},
	{IntentCreate, regexp.MustCompile(`(?i)crea|genera|nuevo archivo|nueva archivo`)},
	{IntentDelete, regexp.MustCompile(`(?i)elimina|borra|quita|remueve`)},
	{IntentExecute, regexp.MustCompile(`(?i)ejecuta|corre|lanza|inicia`)},
	{IntentShow, regexp.MustCompile(`(?i)muestra|visualiza|ver|abre`)},
}

var filenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:archivo|fichero|documento)\s+(?:llamado\s+)?["']?([a-zA-Z0-9_\-.]+\.[a-zA-Z0-9]+)["']?`),
	regexp.MustCompile(`(?i)(?:en|a|el|la)\s+(?:archivo|fichero)?\s*["']?([a-zA-Z0-9_\-.]+\.[a-zA-Z0-9]+)["']?`),
	regexp.MustCompile(`["']([a-zA-Z0-9_\-./]+\.[a-zA-Z0-9]+)["']`),
}

var contentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:contenido|código|texto):\s*["'](.+?)["']`),
	regexp.MustCompile("(?s)```(?:\\w+)?\\s*(.+?)```"),
	regexp.MustCompile(`(?is)(?:contenido|código|texto)\s+(?:siguiente|este):\s*(.+)`),
	regexp.MustCompile(`(?s)["'](.+?)["']`),
}

var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:comando|instrucción|terminal):\s*["'](.+?)["']`),
	regexp.MustCompile(`(?i)(?:ejecuta|corre|lanza|ejecutar|correr)\s+["'](.+?)["']`),
	regexp.MustCompile(`(?i)(?:ejecuta|corre|lanza|ejecutar|correr)\s+(?:el comando|la instrucción)?\s+(.+)`),
}

// DetectIntent returns the first intent whose pattern matches text, or "".
func DetectIntent(text string) Intent {
	for _, p := range intentPatterns {
		if p.re.MatchString(text) {
			return p.intent
		}
	}
	return ""
}

// Parse extracts a command from text. Each intent requires its arguments:
// files for modify, create, delete and show, content for modify and create,
// and a command line for execute.
func Parse(text string) (Command, error) {
	cmd := Command{Text: text, Intent: DetectIntent(text)}
	switch cmd.Intent {
	case "":
		return cmd, ErrNoIntent
	case IntentExecute:
		cmd.ShellCommand = firstGroup(commandPatterns, text)
		if cmd.ShellCommand == "" {
			return cmd, ErrNoCommand
		}
		return cmd, nil
	}

	cmd.Filename = firstGroup(filenamePatterns, text)
	if cmd.Filename == "" {
		return cmd, ErrNoFilename
	}
	if cmd.Intent == IntentModify || cmd.Intent == IntentCreate {
		cmd.Content = extractContent(text, cmd.Filename)
		if cmd.Content == "" {
			return cmd, ErrNoContent
		}
	}
	return cmd, nil
}

// extractContent skips quoted matches that are just the filename.
func extractContent(text, filename string) string {
	for _, re := range contentPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v := strings.TrimSpace(m[1]); v != "" && v != filename {
				return v
			}
		}
	}
	return ""
}

func firstGroup(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
