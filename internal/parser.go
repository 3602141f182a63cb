package internal

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Parser reads structured transaction rows from an export file
type Parser interface {
	Parse(r io.Reader) ([]Row, error)
}

// ParserFunc is a function that implements Parser
type ParserFunc func(r io.Reader) ([]Row, error)

func (f ParserFunc) Parse(r io.Reader) ([]Row, error) {
	return f(r)
}

// parsers is the registry of available row sources. Registration happens in init only.
var parsers = map[string]Parser{}

// RegisterParser registers a parser with the given name
func RegisterParser(name string, p Parser) {
	parsers[name] = p
}

// GetParser returns the parser for the given source type
func GetParser(source string) (Parser, error) {
	p, ok := parsers[source]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s (available: %v)", source, AvailableSources())
	}
	return p, nil
}

// AvailableSources returns the registered source types in name order
func AvailableSources() []string {
	var sources []string
	for name := range parsers {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// IsKnownParser returns true if the name is a registered parser
func IsKnownParser(name string) bool {
	_, ok := parsers[name]
	return ok
}

// ParseFileArg parses a file argument that may have a format prefix.
// Returns (format, path). If no valid prefix, format is empty.
// Example: "xlsx:bank.xlsx" → ("xlsx", "bank.xlsx")
// Example: "gs://bucket/obj.csv" → ("", "gs://bucket/obj.csv")
// Example: "C:\path\file.xlsx" → ("", "C:\path\file.xlsx") // Windows path
func ParseFileArg(arg string) (format, path string) {
	idx := strings.Index(arg, ":")
	if idx == -1 {
		return "", arg
	}
	prefix := arg[:idx]
	if IsKnownParser(prefix) {
		return prefix, arg[idx+1:]
	}
	return "", arg
}

// SourceForPath guesses a row source from the file extension. Returns "" if unknown.
func SourceForPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return "csv"
	case strings.HasSuffix(lower, ".xlsx"):
		return "xlsx"
	case strings.HasSuffix(lower, ".json"):
		return "simple-json"
	}
	return ""
}

func init() {
	RegisterParser("csv", ParserFunc(ParseCSV))
	RegisterParser("xlsx", ParserFunc(ParseXLSX))
	RegisterParser("simple-json", ParserFunc(ParseSimpleJSON))
}
