// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperdex/pkg/types"
)

// artifactMetadata is the metadata.yaml layout written next to each
// summary artifact.
type artifactMetadata struct {
	Paper   types.ResolvedPaper `yaml:"paper"`
	Summary types.SummaryRecord `yaml:"summary"`
}

// WriteArtifact persists the summary under
// <storage_dir>/<YYYY-MM-DD>/<key>/ as summary.md plus metadata.yaml and
// returns the artifact directory (R3.4).
func (g *Generator) WriteArtifact(paper types.ResolvedPaper, record types.SummaryRecord) (string, error) {
	dir := filepath.Join(g.Cfg.StorageDir, record.GeneratedAt.Format("2006-01-02"), record.PaperKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	mdPath := filepath.Join(dir, "summary.md")
	if err := os.WriteFile(mdPath, []byte(record.Markdown+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", mdPath, err)
	}

	meta, err := yaml.Marshal(artifactMetadata{Paper: paper, Summary: record})
	if err != nil {
		return "", fmt.Errorf("marshaling artifact metadata: %w", err)
	}
	metaPath := filepath.Join(dir, "metadata.yaml")
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", metaPath, err)
	}

	return dir, nil
}
