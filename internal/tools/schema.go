package tools

// Schema describes a workspace action and its parameters.
type Schema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []SchemaField `json:"parameters"`
}

// SchemaField describes a single parameter.
type SchemaField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Schemas lists the actions natural-language commands can trigger.
func (r *Registry) Schemas() []Schema {
	s := []Schema{
		{
			Name:        "fs.read_file",
			Description: "Read a file relative to the workspace",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			},
		},
		{
			Name:        "fs.write_file",
			Description: "Write content to a file, replacing it if present",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			},
		},
		{
			Name:        "fs.create_file",
			Description: "Create a new file; fails if it already exists",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: false},
			},
		},
		{
			Name:        "fs.delete",
			Description: "Delete a file or directory",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Required: true},
			},
		},
		{
			Name:        "fs.list",
			Description: "List a directory",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Required: false},
				{Name: "max_depth", Type: "integer", Required: false},
			},
		},
		{
			Name:        "fs.search",
			Description: "Find files by name, extension or content",
			Parameters: []SchemaField{
				{Name: "query", Type: "string", Required: true},
				{Name: "type", Type: "string", Required: false, Enum: []string{FindByName, FindByExtension, FindByContent}},
			},
		},
		{
			Name:        "terminal.run",
			Description: "Run a shell command in the workspace",
			Parameters: []SchemaField{
				{Name: "command", Type: "string", Required: true},
			},
		},
	}
	if r.Semantic != nil {
		s = append(s, Schema{
			Name:        "semantic.search",
			Description: "Rank workspace files by word overlap with a query",
			Parameters: []SchemaField{
				{Name: "query", Type: "string", Required: true},
				{Name: "limit", Type: "integer", Required: false},
			},
		})
	}
	return s
}
