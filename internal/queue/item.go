package queue

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default metadata values applied when a field is absent or empty.
const (
	DefaultPriority = "normal"
	DefaultPlatform = "unknown"
	DefaultKeyword  = "general"
)

// Metadata is the typed view of an item's frontmatter. Absent keys resolve
// to the defaults above; Type stays empty when not declared so the
// classifier can tell "explicit type" from "infer from content".
type Metadata struct {
	Type     string
	Platform string
	Sender   string
	Priority string
	Keyword  string
	Status   string
	Created  string
	Extra    map[string]string
}

// MetadataFromFields builds Metadata from a raw frontmatter field map,
// applying the documented defaults. Unrecognized keys are preserved in
// Extra.
func MetadataFromFields(fields map[string]string) Metadata {
	m := Metadata{
		Type:     fields["type"],
		Platform: fields["platform"],
		Sender:   fields["sender"],
		Priority: fields["priority"],
		Keyword:  fields["keyword"],
		Status:   fields["status"],
		Created:  fields["created"],
	}
	if m.Priority == "" {
		m.Priority = DefaultPriority
	}
	if m.Platform == "" {
		m.Platform = DefaultPlatform
	}
	if m.Keyword == "" {
		m.Keyword = DefaultKeyword
	}

	known := map[string]bool{
		"type": true, "platform": true, "sender": true, "priority": true,
		"keyword": true, "status": true, "created": true,
	}
	for k, v := range fields {
		if known[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = map[string]string{}
		}
		m.Extra[k] = v
	}
	return m
}

// Item is one file in the pipeline. Its stem is its identity: the draft a
// skill generates for it and the approval a human grants both carry the
// stem in their names.
type Item struct {
	Path    string
	Name    string
	Stem    string
	Content string
	Body    string
	Meta    Metadata
}

// Load reads and parses a queue file.
func Load(path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read item %s: %w", path, err)
	}

	content := string(data)
	fields, body := ParseFrontmatter(content)

	return &Item{
		Path:    path,
		Name:    filepath.Base(path),
		Stem:    Stem(path),
		Content: content,
		Body:    body,
		Meta:    MetadataFromFields(fields),
	}, nil
}
