package ports

// TemplateLoader defines where workflow templates come from.
// This allows the storage layer (filesystem, memory) to be decoupled.
type TemplateLoader interface {
	// Load retrieves the raw template document registered under name.
	Load(name string) ([]byte, error)

	// List returns the names of all available templates.
	// This is used by the server and CLI to enumerate workflows.
	List() ([]string, error)
}
