package main

import (
	"bytes"
	"log/slog"
	"testing"

	"neo4j-graphql/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportValidation(t *testing.T) {
	tests := []struct {
		name      string
		result    *config.ValidationResult
		expectErr bool
		wantLogs  []string
	}{
		{
			name:   "clean",
			result: &config.ValidationResult{},
		},
		{
			name: "warnings only",
			result: &config.ValidationResult{Warnings: []config.ValidationWarning{
				{Field: "server.auth", Message: "no token verifier", Hint: "set jwt_secret"},
			}},
			wantLogs: []string{"configuration warning", "field=server.auth"},
		},
		{
			name: "errors fail",
			result: &config.ValidationResult{Errors: []config.ValidationError{
				{Field: "neo4j.uri", Message: "is required"},
				{Field: "schema.type_defs_file", Message: "is required"},
			}},
			expectErr: true,
			wantLogs:  []string{"configuration error", "field=neo4j.uri", "field=schema.type_defs_file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			err := reportValidation(logger, tt.result)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "2 error(s)")
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantLogs {
				assert.Contains(t, buf.String(), want)
			}
			if len(tt.wantLogs) == 0 {
				assert.Empty(t, buf.String())
			}
		})
	}
}
