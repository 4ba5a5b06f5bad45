package extract

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps file extensions to MIME types for the file_type facet
// field (§3).
var mimeTypes = map[string]string{
	".go":  "text/x-go",
	".mod": "text/x-go.mod",
	".sum": "text/x-go.sum",

	".ts":  "text/typescript",
	".tsx": "text/typescript",
	".js":  "text/javascript",
	".jsx": "text/javascript",
	".mjs": "text/javascript",

	".py": "text/x-python",

	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".scss": "text/x-scss",

	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".xml":  "text/xml",
	".toml": "text/x-toml",

	".md":  "text/markdown",
	".mdx": "text/markdown",
	".txt": "text/plain",
	".rst": "text/x-rst",

	".env":  "text/plain",
	".ini":  "text/plain",
	".conf": "text/plain",

	".sh":   "text/x-sh",
	".bash": "text/x-sh",
	".zsh":  "text/x-sh",

	".sql": "text/x-sql",

	".c":   "text/x-c",
	".cpp": "text/x-c++",
	".h":   "text/x-c",

	".java": "text/x-java",
	".rs":   "text/x-rust",
	".rb":   "text/x-ruby",
	".php":  "text/x-php",

	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".csv":  "text/csv",
}

var specialFilenames = map[string]string{
	"Dockerfile":     "text/x-dockerfile",
	"Makefile":       "text/x-makefile",
	"Jenkinsfile":    "text/x-groovy",
	"Vagrantfile":    "text/x-ruby",
	"Gemfile":        "text/x-ruby",
	"Rakefile":       "text/x-ruby",
	"CMakeLists.txt": "text/x-cmake",
}

// MimeTypeForPath returns the file_type value for path: special filenames
// first, then extension, defaulting to text/plain.
func MimeTypeForPath(path string) string {
	base := filepath.Base(path)

	if mime, ok := specialFilenames[base]; ok {
		return mime
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if mime, ok := mimeTypes[ext]; ok {
			return mime
		}
	}

	return "text/plain"
}
