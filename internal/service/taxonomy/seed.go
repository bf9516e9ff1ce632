package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// SeedEntry is one canonical taxonomy entry in the seed catalog.
type SeedEntry struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// SeedFile is the on-disk taxonomy catalog, one list per family.
type SeedFile struct {
	Skills         []SeedEntry `yaml:"skills"`
	Roles          []SeedEntry `yaml:"roles"`
	Software       []SeedEntry `yaml:"software"`
	Certifications []SeedEntry `yaml:"certifications"`
}

// SeedRow is one flattened entry ready for upsert.
type SeedRow struct {
	Kind    domain.TaxonomyKind
	ID      string
	Display string
	Aliases []string
}

// LoadSeedFile parses a YAML taxonomy catalog.
func LoadSeedFile(path string) (SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("op=taxonomy.LoadSeedFile: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return SeedFile{}, fmt.Errorf("op=taxonomy.LoadSeedFile: %w", err)
	}
	return f, nil
}

// Rows flattens the catalog. Every entry gets its display name as an
// implicit alias; all aliases are normalized the same way the mapper
// normalizes lookup terms, so exact-tier hits line up.
func (f SeedFile) Rows() ([]SeedRow, error) {
	var out []SeedRow
	add := func(kind domain.TaxonomyKind, entries []SeedEntry) error {
		for _, e := range entries {
			if e.ID == "" || e.Name == "" {
				return fmt.Errorf("op=taxonomy.Rows: %s entry needs id and name (got id=%q name=%q)", kind, e.ID, e.Name)
			}
			seen := map[string]bool{}
			aliases := make([]string, 0, len(e.Aliases)+1)
			for _, a := range append([]string{e.Name}, e.Aliases...) {
				n := textx.NormalizeKey(a)
				if n == "" || seen[n] {
					continue
				}
				seen[n] = true
				aliases = append(aliases, n)
			}
			out = append(out, SeedRow{Kind: kind, ID: e.ID, Display: e.Name, Aliases: aliases})
		}
		return nil
	}
	if err := add(domain.TaxonomySkill, f.Skills); err != nil {
		return nil, err
	}
	if err := add(domain.TaxonomyRole, f.Roles); err != nil {
		return nil, err
	}
	if err := add(domain.TaxonomySoftware, f.Software); err != nil {
		return nil, err
	}
	if err := add(domain.TaxonomyCertification, f.Certifications); err != nil {
		return nil, err
	}
	return out, nil
}
