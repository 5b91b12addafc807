package gqlrequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEnvelope_Metadata(t *testing.T) {
	tests := []struct {
		name             string
		query            string
		operationName    string
		wantType         string
		wantFields       int
		wantDepth        int
		wantVars         int
		wantParseErr     bool
		wantSelectionErr bool
		wantResolvedName string
	}{
		{
			name:             "anonymous query",
			query:            `{ movies { title actors { name } } }`,
			wantType:         "query",
			wantFields:       4,
			wantDepth:        3,
			wantResolvedName: "<anonymous>",
		},
		{
			name: "named query with variables",
			query: `query Recent($year: Int!, $limit: Int) {
				movies(where: { released_GTE: $year }, limit: $limit) { title }
			}`,
			operationName:    "Recent",
			wantType:         "query",
			wantFields:       2,
			wantDepth:        2,
			wantVars:         2,
			wantResolvedName: "Recent",
		},
		{
			name: "mutation",
			query: `mutation AddMovie($title: String!) {
				createMovies(input: [{ title: $title }]) { movies { title } info { nodesCreated } }
			}`,
			operationName:    "AddMovie",
			wantType:         "mutation",
			wantFields:       5,
			wantDepth:        3,
			wantVars:         1,
			wantResolvedName: "AddMovie",
		},
		{
			name: "multiple operations need a name",
			query: `
				query Movies { movies { title } }
				query Actors { actors { name } }
			`,
			wantSelectionErr: true,
		},
		{
			name:             "unknown operation name",
			query:            `query Movies { movies { title } }`,
			operationName:    "Actors",
			wantSelectionErr: true,
		},
		{
			name:         "malformed query",
			query:        `query { movies { `,
			wantParseErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := AnalyzeEnvelope(Envelope{Query: tt.query, OperationName: tt.operationName})
			assert.Equal(t, tt.wantParseErr, analysis.ParseError != nil, "parse error: %v", analysis.ParseError)
			assert.Equal(t, tt.wantSelectionErr, analysis.SelectionError != nil, "selection error: %v", analysis.SelectionError)
			if tt.wantParseErr || tt.wantSelectionErr {
				return
			}
			assert.Equal(t, tt.wantType, analysis.OperationType)
			assert.Equal(t, tt.wantFields, analysis.FieldCount)
			assert.Equal(t, tt.wantDepth, analysis.SelectionDepth)
			assert.Equal(t, tt.wantVars, analysis.VariableCount)
			assert.Equal(t, tt.wantResolvedName, analysis.OperationName)
			assert.NotEmpty(t, analysis.OperationHash)
		})
	}
}

func TestAnalyzeEnvelope_EmptyQuery(t *testing.T) {
	analysis := AnalyzeEnvelope(Envelope{})
	assert.NoError(t, analysis.ParseError)
	assert.Nil(t, analysis.Operation)
}

func TestAnalyzeEnvelope_FragmentCycleSafe(t *testing.T) {
	analysis := AnalyzeEnvelope(Envelope{Query: `
		fragment A on Movie { title ...B }
		fragment B on Movie { released ...A }
		{ movies { ...A } }
	`})
	require.NoError(t, analysis.ParseError)
	require.NoError(t, analysis.SelectionError)
	assert.Equal(t, 3, analysis.FieldCount)
}

func TestOperationHash(t *testing.T) {
	t.Run("whitespace and comments are ignored", func(t *testing.T) {
		a := AnalyzeEnvelope(Envelope{Query: "query M {\n  movies { title released }\n}", OperationName: "M"})
		b := AnalyzeEnvelope(Envelope{Query: "# recent\nquery M { movies { title released } }", OperationName: "M"})
		require.NotEmpty(t, a.OperationHash)
		assert.Equal(t, a.OperationHash, b.OperationHash)
	})

	t.Run("selected operation changes the hash", func(t *testing.T) {
		query := `query A { movies { title } } query B { actors { name } }`
		a := AnalyzeEnvelope(Envelope{Query: query, OperationName: "A"})
		b := AnalyzeEnvelope(Envelope{Query: query, OperationName: "B"})
		assert.NotEqual(t, a.OperationHash, b.OperationHash)
	})

	t.Run("framing disambiguates tuples", func(t *testing.T) {
		assert.NotEqual(t, framedSHA256("ab", "c"), framedSHA256("a", "bc"))
	})
}
