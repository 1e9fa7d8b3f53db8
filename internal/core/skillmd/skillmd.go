// Package skillmd reads and writes SKILL.md descriptors: a YAML frontmatter
// block between "---" lines followed by free-form instructions.
package skillmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the descriptor file every skill directory must contain.
const FileName = "SKILL.md"

var (
	// ErrNoFrontmatter indicates that the file does not start with a frontmatter block.
	ErrNoFrontmatter = errors.New("no frontmatter")
	// ErrMissingField indicates that a mandatory frontmatter field is absent or not a string.
	ErrMissingField = errors.New("missing required field")
)

// Document is a parsed SKILL.md.
type Document struct {
	Name        string
	Description string
	License     string
	Internal    bool
	Frontmatter map[string]any
	Body        string
}

// Parse reads and validates the SKILL.md at path.
func Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// ParseBytes parses SKILL.md content.
func ParseBytes(data []byte) (*Document, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty file: %w", ErrNoFrontmatter)
	}
	if strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff")) != "---" {
		return nil, ErrNoFrontmatter
	}

	var frontmatter strings.Builder
	closed := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		frontmatter.WriteString(line)
		frontmatter.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !closed {
		return nil, fmt.Errorf("unterminated frontmatter: %w", ErrNoFrontmatter)
	}

	var body strings.Builder
	for scanner.Scan() {
		body.WriteString(strings.TrimRight(scanner.Text(), "\r"))
		body.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	fm := map[string]any{}
	if err := yaml.Unmarshal([]byte(frontmatter.String()), &fm); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}

	doc := &Document{
		Frontmatter: fm,
		Body:        strings.TrimLeft(body.String(), "\n"),
	}

	var ok bool
	if doc.Name, ok = stringField(fm, "name"); !ok {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if doc.Description, ok = stringField(fm, "description"); !ok {
		return nil, fmt.Errorf("%w: description", ErrMissingField)
	}
	doc.License, _ = stringField(fm, "license")

	if meta, ok := fm["metadata"].(map[string]any); ok {
		doc.Internal, _ = meta["internal"].(bool)
	}

	return doc, nil
}

func stringField(fm map[string]any, key string) (string, bool) {
	s, ok := fm[key].(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

// Template renders a starter SKILL.md for a new skill.
func Template(name, description string) []byte {
	if description == "" {
		description = "A brief description of what this skill does and when to use it"
	}

	fm, _ := yaml.Marshal(struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	}{name, description})

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", title(name))
	b.WriteString("Instructions for the agent to follow when this skill is active.\n\n")
	b.WriteString("## When to use\n\n")
	b.WriteString("Describe the situations in which this skill applies.\n\n")
	b.WriteString("## Instructions\n\n")
	b.WriteString("1. First step\n")
	b.WriteString("2. Second step\n")
	return b.Bytes()
}

func title(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return name
	}
	return strings.Join(words, " ")
}
