package settings

import (
	"path"
	"strings"
)

var languageAliases = map[string]string{
	"javascript": "javascript",
	"js":         "javascript",
	"typescript": "typescript",
	"ts":         "typescript",
	"python":     "python",
	"py":         "python",
	"java":       "java",
	"cpp":        "cpp",
	"c++":        "cpp",
	"csharp":     "csharp",
	"cs":         "csharp",
	"c#":         "csharp",
	"html":       "html",
	"css":        "css",
	"json":       "json",
	"markdown":   "markdown",
	"md":         "markdown",
	"sql":        "sql",
	"php":        "php",
	"ruby":       "ruby",
	"rb":         "ruby",
	"rust":       "rust",
	"rs":         "rust",
	"go":         "go",
	"golang":     "go",
	"swift":      "swift",
	"kotlin":     "kotlin",
	"kt":         "kotlin",
	"scala":      "scala",
	"r":          "r",
	"shell":      "shell",
	"bash":       "shell",
	"sh":         "shell",
	"yaml":       "yaml",
	"yml":        "yaml",
	"xml":        "xml",
	"dockerfile": "dockerfile",
	"docker":     "dockerfile",
}

// extensions the alias table does not already cover
var extensionLanguages = map[string]string{
	"jsx":  "jsx",
	"tsx":  "tsx",
	"mjs":  "javascript",
	"cjs":  "javascript",
	"h":    "c",
	"c":    "c",
	"hpp":  "cpp",
	"cc":   "cpp",
	"htm":  "html",
	"scss": "sass",
	"sass": "sass",
	"less": "less",
	"toml": "toml",
	"lua":  "lua",
	"dart": "dart",
	"zsh":  "shell",
	"txt":  "plaintext",
}

// NormalizeLanguage lower-cases name, strips whitespace and resolves common
// aliases. Unknown names are returned normalized but otherwise unchanged.
func NormalizeLanguage(name string) string {
	n := strings.ToLower(strings.Join(strings.Fields(name), ""))
	if alias, ok := languageAliases[n]; ok {
		return alias
	}
	return n
}

// DetectLanguage maps a file name to a language by its extension. ok is
// false when the name has no extension or the extension is unknown.
func DetectLanguage(filename string) (string, bool) {
	base := strings.ToLower(path.Base(filename))
	if base == "dockerfile" {
		return "dockerfile", true
	}

	ext := strings.TrimPrefix(path.Ext(base), ".")
	if ext == "" {
		return "", false
	}
	if lang, ok := extensionLanguages[ext]; ok {
		return lang, true
	}
	if lang, ok := languageAliases[ext]; ok {
		return lang, true
	}
	return "", false
}
