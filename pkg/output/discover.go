package output

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Deployment is a persisted deployment found on disk.
type Deployment struct {
	Dir      string
	Metadata *Metadata
}

// Discover finds deployment.yaml files below root up to maxDepth
// directories deep. A maxDepth of -1 means unlimited, 0 means only root
// itself. Results are ordered by depth, then by path.
func Discover(root string, maxDepth int) ([]Deployment, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if _, err := os.Stat(absRoot); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(absRoot), "**/"+MetadataFilename)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", absRoot, err)
	}

	var rels []string
	for _, m := range matches {
		dir := filepath.Dir(filepath.FromSlash(m))
		if maxDepth >= 0 && pathDepth(dir) > maxDepth {
			continue
		}
		rels = append(rels, m)
	}
	slices.SortFunc(rels, func(a, b string) int {
		if d := pathDepth(filepath.Dir(a)) - pathDepth(filepath.Dir(b)); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	out := make([]Deployment, 0, len(rels))
	for _, rel := range rels {
		p := filepath.Join(absRoot, filepath.FromSlash(rel))
		m, err := LoadMetadata(p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		out = append(out, Deployment{Dir: filepath.Dir(p), Metadata: m})
	}
	return out, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
