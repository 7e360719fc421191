package capability

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/autodraw-agent/pkg/semver"
)

const logPrefix = "capability:catalog"

// SupportedSchemaRange is the catalog schemaVersion range this build understands.
const SupportedSchemaRange = "^1.0.0"

// CatalogFileEnv names the environment variable consulted by LoadCatalog.
const CatalogFileEnv = "CAPABILITY_CATALOG_FILE"

//go:embed default_catalog.json
var defaultCatalogJSON []byte

// LoadCatalog loads the command catalog from file paths or environment.
// It tries paths in order: first any paths passed in, then CAPABILITY_CATALOG_FILE,
// then config/capabilities.json and capabilities.json. Unreadable or invalid files
// are skipped. When nothing loads, the embedded default catalog is returned.
func LoadCatalog(paths ...string) (*Catalog, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(CatalogFileEnv); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/capabilities.json", "capabilities.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cat, err := ParseCatalog(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse catalog file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded catalog %s from %s", logPrefix, cat.Name, p))
		return cat, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default catalog", logPrefix))
	return DefaultCatalog()
}

// ParseCatalog decodes a catalog and checks its schema version.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%s - decode catalog: %w", logPrefix, err)
	}
	if err := semver.CheckCompatibility("catalog schema", cat.SchemaVersion, SupportedSchemaRange); err != nil {
		return nil, err
	}
	return &cat, nil
}

// DefaultCatalog returns a fresh copy of the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogJSON)
}

// MustDefaultRegistry builds a Registry from the embedded catalog and panics
// if it is invalid. Intended for tests and tools.
func MustDefaultRegistry() *Registry {
	cat, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	reg, err := New(cat)
	if err != nil {
		panic(err)
	}
	return reg
}
