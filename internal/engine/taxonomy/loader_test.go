package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const skosFixture = `{
  "@context": {"skos": "http://www.w3.org/2004/02/skos/core#", "ex": "http://example.org/"},
  "@graph": [
    {"@id": "ex:scheme", "@type": "skos:ConceptScheme", "skos:prefLabel": "Knowledge v1"},
    {
      "@id": "ex:physical_sciences",
      "@type": "skos:Concept",
      "skos:prefLabel": {"@value": "Physical Sciences", "@language": "en"},
      "skos:inScheme": {"@id": "ex:scheme"},
      "skos:topConceptOf": {"@id": "ex:scheme"},
      "skos:narrower": [{"@id": "ex:physics"}, {"@id": "ex:chemistry"}]
    },
    {
      "@id": "ex:physics",
      "@type": ["skos:Concept"],
      "skos:prefLabel": [{"@value": "Physik", "@language": "de"}, {"@value": "Physics", "@language": "en"}],
      "skos:definition": "Matter and energy",
      "skos:altLabel": ["Natural philosophy", {"@value": "Mechanics"}],
      "skos:inScheme": {"@id": "ex:scheme"},
      "skos:broader": {"@id": "ex:physical_sciences"}
    },
    {
      "@id": "http://example.org/tax#chemistry",
      "@type": "skos:Concept",
      "skos:prefLabel": "Chemistry",
      "skos:inScheme": {"@id": "ex:scheme"}
    }
  ]
}`

func TestParseSKOS(t *testing.T) {
	records, err := ParseSKOS([]byte(skosFixture))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Record{ID: "physical_sciences", Label: "Physical Sciences"}, records[0])
	assert.Equal(t, Record{
		ID:         "physics",
		Label:      "Physics",
		Definition: "Matter and energy",
		Synonyms:   []string{"Natural philosophy", "Mechanics"},
		Parent:     "physical_sciences",
	}, records[1])
	assert.Equal(t, "chemistry", records[2].ID)
	assert.Equal(t, "physical_sciences", records[2].Parent, "narrower link sets the parent")

	idx, err := Build(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, idx.Children("physical_sciences"), 2)
}

func TestParseSKOSErrors(t *testing.T) {
	_, err := ParseSKOS([]byte(`{"concepts": []}`))
	assert.ErrorIs(t, err, ErrTaxonomyLoad)

	_, err = ParseSKOS([]byte(`{"@graph": [`))
	assert.ErrorIs(t, err, ErrTaxonomyLoad)
}

func TestLoadFileFormats(t *testing.T) {
	yamlList := `
- id: tech
  label: Technology
- id: ai
  label: Artificial Intelligence
  synonyms: [AI]
  parent: tech
  embedding: [0.5, 0.5]
`
	yamlDoc := "concepts:\n  - id: tech\n    label: Technology\n"
	jsonList := `[{"id": "tech", "label": "Technology"}, {"id": "ai", "label": "AI", "parent": "tech"}]`

	records, err := LoadFile(writeFile(t, "tax.yaml", yamlList))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tech", records[1].Parent)
	assert.Equal(t, []string{"AI"}, records[1].Synonyms)
	assert.Equal(t, []float32{0.5, 0.5}, records[1].Embedding)

	records, err = LoadFile(writeFile(t, "tax.yml", yamlDoc))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = LoadFile(writeFile(t, "tax.json", jsonList))
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = LoadFile(writeFile(t, "tax.jsonld", skosFixture))
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unsupported extension", "tax.csv", "id,label"},
		{"bad yaml", "tax.yaml", "- id: [unclosed"},
		{"bad json", "tax.json", "[{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.file, tt.body))
			assert.ErrorIs(t, err, ErrTaxonomyLoad)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrTaxonomyLoad)
}

func TestLocalID(t *testing.T) {
	assert.Equal(t, "physics", localID("ex:physics"))
	assert.Equal(t, "physics", localID("http://example.org/tax#physics"))
	assert.Equal(t, "physics", localID("https://example.org/concepts/physics"))
	assert.Equal(t, "physics", localID("physics"))
}
