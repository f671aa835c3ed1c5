package taxonomy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one concept as read from a taxonomy resource.
type Record struct {
	ID         string    `yaml:"id" json:"id"`
	Label      string    `yaml:"label" json:"label"`
	Definition string    `yaml:"definition,omitempty" json:"definition,omitempty"`
	Synonyms   []string  `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	Parent     string    `yaml:"parent,omitempty" json:"parent,omitempty"`
	Embedding  []float32 `yaml:"embedding,omitempty" json:"embedding,omitempty"`
}

// LoadFile reads taxonomy records from path. YAML files (.yaml, .yml) hold a
// list of records, optionally under a top-level "concepts" key. JSON files
// hold either a list of records or a SKOS JSON-LD document with an @graph.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTaxonomyLoad, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json", ".jsonld":
		if bytes.Contains(data, []byte(`"@graph"`)) {
			return ParseSKOS(data)
		}
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrTaxonomyLoad, path, err)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("%w: unsupported taxonomy format %q", ErrTaxonomyLoad, filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML list of records or a document of the form
// {concepts: [...]}.
func ParseYAML(data []byte) ([]Record, error) {
	var doc struct {
		Concepts []Record `yaml:"concepts"`
	}
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Concepts) > 0 {
		return doc.Concepts, nil
	}

	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrTaxonomyLoad, err)
	}
	return records, nil
}

// ParseSKOS decodes a SKOS JSON-LD document. Every skos:Concept node in
// @graph becomes a record; skos:prefLabel, skos:altLabel, skos:definition
// and skos:broader map to label, synonyms, definition and parent. A
// skos:narrower link sets the parent of a child that declares no
// skos:broader. Concept URIs are reduced to their local id, so "ex:physics"
// and "http://example.org/tax#physics" both become "physics".
func ParseSKOS(data []byte) ([]Record, error) {
	var doc struct {
		Graph []map[string]json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse skos: %v", ErrTaxonomyLoad, err)
	}
	if doc.Graph == nil {
		return nil, fmt.Errorf("%w: skos document has no @graph", ErrTaxonomyLoad)
	}

	var records []Record
	pos := map[string]int{}
	narrower := map[string][]string{}

	for _, node := range doc.Graph {
		if !hasType(node["@type"], "skos:Concept") {
			continue
		}
		id := localID(literal(node["@id"]))
		r := Record{
			ID:         id,
			Label:      literal(node["skos:prefLabel"]),
			Definition: literal(node["skos:definition"]),
			Synonyms:   literals(node["skos:altLabel"]),
		}
		if broader := refs(node["skos:broader"]); len(broader) > 0 {
			r.Parent = broader[0]
		}
		narrower[id] = refs(node["skos:narrower"])
		pos[id] = len(records)
		records = append(records, r)
	}

	for j := range records {
		parent := records[j].ID
		for _, kid := range narrower[parent] {
			if i, ok := pos[kid]; ok && records[i].Parent == "" && kid != parent {
				records[i].Parent = parent
			}
		}
	}
	return records, nil
}

// localID strips a namespace prefix or URI path from a concept reference.
func localID(uri string) string {
	if i := strings.LastIndex(uri, "#"); i >= 0 {
		return uri[i+1:]
	}
	if strings.Contains(uri, "://") {
		return uri[strings.LastIndex(uri, "/")+1:]
	}
	if i := strings.Index(uri, ":"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// jsonValue is the JSON-LD value object form {"@value": ..., "@id": ...}.
type jsonValue struct {
	Value    string `json:"@value"`
	ID       string `json:"@id"`
	Language string `json:"@language"`
}

// values flattens a JSON-LD term that may be a string, a value object or an
// array of either.
func values(raw json.RawMessage) []jsonValue {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []jsonValue{{Value: s, ID: s}}
	}
	var v jsonValue
	if err := json.Unmarshal(raw, &v); err == nil && (v.Value != "" || v.ID != "") {
		return []jsonValue{v}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	var out []jsonValue
	for _, item := range arr {
		out = append(out, values(item)...)
	}
	return out
}

// literal returns the first literal of a term, preferring English.
func literal(raw json.RawMessage) string {
	vs := values(raw)
	for _, v := range vs {
		if strings.HasPrefix(v.Language, "en") {
			return v.Value
		}
	}
	if len(vs) > 0 {
		return vs[0].Value
	}
	return ""
}

func literals(raw json.RawMessage) []string {
	var out []string
	for _, v := range values(raw) {
		if v.Value != "" {
			out = append(out, v.Value)
		}
	}
	return out
}

func refs(raw json.RawMessage) []string {
	var out []string
	for _, v := range values(raw) {
		if v.ID != "" {
			out = append(out, localID(v.ID))
		}
	}
	return out
}

func hasType(raw json.RawMessage, want string) bool {
	for _, v := range values(raw) {
		if v.Value == want || v.ID == want {
			return true
		}
	}
	return false
}
