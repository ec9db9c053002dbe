package tools

import "github.com/josedcape/codestorm-preeliminar/internal/semantic"

// Registry is the action surface shared by the workspace API and the
// commands executor. Any field may be nil; the matching actions are then
// left out of Schemas.
type Registry struct {
	FS       *Filesystem
	Terminal *Terminal
	Semantic *semantic.Engine
}

func NewRegistry(fs *Filesystem, term *Terminal, sem *semantic.Engine) *Registry {
	return &Registry{FS: fs, Terminal: term, Semantic: sem}
}

// FromSandbox builds a registry over the sandbox's tools with a relevance
// engine on the same workspace.
func FromSandbox(sb *Sandbox) *Registry {
	if sb == nil {
		return &Registry{}
	}
	var sem *semantic.Engine
	if sb.FS != nil {
		sem = semantic.NewEngine(sb.FS, 0, 0)
	}
	return &Registry{FS: sb.FS, Terminal: sb.Terminal, Semantic: sem}
}

// Root is the workspace directory, empty without a filesystem.
func (r *Registry) Root() string {
	if r == nil || r.FS == nil {
		return ""
	}
	return r.FS.Base()
}

// Schema looks up an action by its dotted name, e.g. "fs.read_file".
func (r *Registry) Schema(name string) (Schema, bool) {
	for _, s := range r.Schemas() {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}
