package gitcache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/AisyIE/ai-toolbox/internal/types"
)

// skillFrontmatter is the YAML header of a SKILL.md file.
type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ListCandidates enumerates the skill-shaped subpaths inside a fetched
// working copy. A skill is any directory holding a SKILL.md; when the
// copy carries none, its top-level directories are offered as bare
// candidates instead.
func ListCandidates(workingCopy string) ([]types.GitSkillCandidate, error) {
	matches, err := doublestar.Glob(os.DirFS(workingCopy), "**/SKILL.md")
	if err != nil {
		return nil, &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to scan working copy for skills",
			Err:     err,
		}
	}

	var candidates []types.GitSkillCandidate
	for _, match := range matches {
		subpath := filepath.ToSlash(filepath.Dir(match))
		name := filepath.Base(subpath)
		if subpath == "." {
			subpath = ""
			name = filepath.Base(workingCopy)
		}

		fm := parseFrontmatter(filepath.Join(workingCopy, filepath.FromSlash(match)))
		if fm.Name != "" {
			name = fm.Name
		}
		candidates = append(candidates, types.GitSkillCandidate{
			Name:        name,
			Description: fm.Description,
			Subpath:     subpath,
		})
	}

	if len(candidates) == 0 {
		candidates, err = topLevelCandidates(workingCopy)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Subpath < candidates[j].Subpath
	})
	return candidates, nil
}

func topLevelCandidates(workingCopy string) ([]types.GitSkillCandidate, error) {
	entries, err := os.ReadDir(workingCopy)
	if err != nil {
		return nil, &CacheError{
			Type:    ErrTypeFilesystem,
			Message: "failed to read working copy",
			Err:     err,
		}
	}
	var candidates []types.GitSkillCandidate
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		candidates = append(candidates, types.GitSkillCandidate{
			Name:    entry.Name(),
			Subpath: entry.Name(),
		})
	}
	return candidates, nil
}

// parseFrontmatter extracts the YAML header between --- markers. A file
// without frontmatter yields zero values.
func parseFrontmatter(path string) skillFrontmatter {
	var fm skillFrontmatter
	data, err := os.ReadFile(path)
	if err != nil {
		return fm
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return fm
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm
	}
	_ = yaml.Unmarshal([]byte(rest[:end]), &fm)
	return fm
}
