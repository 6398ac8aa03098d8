package vtab

import (
	"strings"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/reader"
)

// Args is a parsed table-definition argument list.
type Args struct {
	// Named holds KEY=value arguments with upper-cased keys.
	Named map[string]string
	// Positional holds the remaining arguments in order.
	Positional []string
}

// ParseArgs splits module arguments into named and positional ones. An
// argument is named only when the text before its first '=' is a bare
// identifier, so a positional URL may carry a query string. Values lose
// surrounding quotes; keys are trimmed and upper-cased.
func ParseArgs(args []string) Args {
	parsed := Args{Named: make(map[string]string)}
	for _, arg := range args {
		if key, value, ok := strings.Cut(arg, "="); ok && isIdentifier(strings.TrimSpace(key)) {
			parsed.Named[strings.ToUpper(strings.TrimSpace(key))] = trimQuotes(strings.TrimSpace(value))
			continue
		}
		parsed.Positional = append(parsed.Positional, trimQuotes(strings.TrimSpace(arg)))
	}
	return parsed
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func trimQuotes(s string) string {
	return strings.Trim(s, `'"`)
}

// Lookup returns the named argument key, falling back to positional slot pos.
func (a Args) Lookup(key string, pos int) (string, bool) {
	if v, ok := a.Named[key]; ok {
		return v, true
	}
	if pos < len(a.Positional) {
		return a.Positional[pos], true
	}
	return "", false
}

// Definition is the resolved table definition.
type Definition struct {
	URL     string
	Format  reader.Format
	Storage catalog.Mode
}

// ParseDefinition resolves URL, FORMAT and STORAGE from the module
// arguments. STORAGE defaults to defaultMode.
func ParseDefinition(args []string, defaultMode catalog.Mode) (Definition, error) {
	if len(args) < 2 {
		return Definition{}, vterrors.New(vterrors.ErrCategoryConfig, vterrors.CodeMissingArgument,
			"URL and FORMAT args must be provided")
	}
	parsed := ParseArgs(args)

	def := Definition{Storage: defaultMode}
	url, ok := parsed.Lookup("URL", 0)
	if !ok || url == "" {
		return Definition{}, vterrors.New(vterrors.ErrCategoryConfig, vterrors.CodeMissingArgument, "no URL provided")
	}
	def.URL = url

	name, ok := parsed.Lookup("FORMAT", 1)
	if !ok {
		return Definition{}, vterrors.New(vterrors.ErrCategoryConfig, vterrors.CodeMissingArgument, "no data format specified")
	}
	format, err := reader.ParseFormat(name)
	if err != nil {
		return Definition{}, err
	}
	def.Format = format

	if opt, ok := parsed.Lookup("STORAGE", 2); ok {
		mode, err := catalog.ParseMode(opt)
		if err != nil {
			return Definition{}, err
		}
		def.Storage = mode
	}
	return def, nil
}
