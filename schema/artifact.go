package schema

import (
	"os"
	"sort"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/BenjaminRains/etlpipe/logger"
)

// SaveArtifact validates then writes the artifact as YAML. An invalid artifact
// is never published.
func SaveArtifact(log logger.Logger, path string, a Artifact) error {
	if err := a.Validate(); err != nil {
		return errors.Wrap(err, "refusing to publish inconsistent artifact")
	}
	b, err := yaml.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "error marshalling table configuration artifact")
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrapf(err, "error writing table configuration artifact %q", path)
	}
	log.Info("published table configuration artifact with ", len(a), " tables to ", path)
	return nil
}

// LoadArtifact reads and validates a previously published artifact.
// Unknown fields in the document are ignored so newer analyzers can add
// advisory metadata without breaking older readers.
func LoadArtifact(log logger.Logger, path string) (Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading table configuration artifact %q", path)
	}
	var a Artifact
	if err := yaml.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrapf(err, "error parsing table configuration artifact %q", path)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	log.Debug("loaded table configuration artifact with ", len(a), " tables from ", path)
	return a, nil
}

func (a Artifact) tableNames(keep func(TableConfig) bool) []string {
	names := make([]string, 0, len(a))
	for name, cfg := range a {
		if keep(cfg) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
