package schemarefresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/schema"
)

// BuildModelConfig defines inputs for shared model assembly.
type BuildModelConfig struct {
	TypeDefs  string
	Naming    naming.Config
	Callbacks []string
	Logger    *slog.Logger
}

// BuildModel runs the canonical model assembly pipeline used by runtime and tests.
func BuildModel(ctx context.Context, cfg BuildModelConfig) (*schema.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	model, err := schema.Build(cfg.TypeDefs,
		schema.WithNamer(naming.New(cfg.Naming, logger)),
		schema.WithCallbacks(cfg.Callbacks...),
		schema.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema model: %w", err)
	}
	return model, nil
}

// readTypeDefs loads the type definitions file and its content fingerprint.
func readTypeDefs(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read type definitions %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return string(data), hex.EncodeToString(sum[:]), nil
}
