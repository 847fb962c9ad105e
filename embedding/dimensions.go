package embedding

import "strings"

// knownDimensions lists the output width of common embedding models.
var knownDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownDimensions returns the vector width of a well-known model, or 0.
// Ollama tags such as ":latest" are ignored.
func KnownDimensions(model string) int {
	name, _, _ := strings.Cut(strings.TrimPrefix(model, "ollama/"), ":")
	return knownDimensions[name]
}
