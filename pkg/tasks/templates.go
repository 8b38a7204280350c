package tasks

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemstart/launchpad/pkg/api"
	"github.com/systemstart/launchpad/pkg/deploy"
)

// TemplateSuffix is stripped from rendered file names.
const TemplateSuffix = ".tmpl"

func (c *Catalogue) renderTemplates(_ context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldWorkDir); err != nil {
		return err
	}

	filter := c.manifest.Templates.Files
	files, err := filterFiles(os.DirFS(dc.WorkDir), filter.Include, filter.Exclude)
	if err != nil {
		return fmt.Errorf("filtering files: %w", err)
	}

	slog.Info("rendering templates", "workDir", dc.WorkDir, "count", len(files))

	data := dc.TemplateData()
	for _, file := range files {
		if err := renderFile(dc.WorkDir, file, data); err != nil {
			return fmt.Errorf("rendering %s: %w", file, err)
		}
	}
	return nil
}

func globFS(fsys fs.FS, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}

func filterFiles(fsys fs.FS, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{api.DefaultTemplateInclude}
	}

	included, err := globFS(fsys, include)
	if err != nil {
		return nil, fmt.Errorf("include filter: %w", err)
	}
	excluded, err := globFS(fsys, exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude filter: %w", err)
	}

	var result []string
	for _, f := range included {
		info, err := fs.Stat(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
		if info.IsDir() || slices.Contains(excluded, f) {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

// renderFile executes filename as a template. Files ending in .tmpl are
// written next to the source without the suffix; anything else is rendered
// in place.
func renderFile(workDir, filename string, data map[string]any) error {
	src := filepath.Join(workDir, filename)
	dst := strings.TrimSuffix(src, TemplateSuffix)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	tmpl, err := template.New(filepath.Base(filename)).
		Option("missingkey=error").
		Funcs(sprig.FuncMap()).
		Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	if err := os.WriteFile(dst, []byte(out.String()), info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	// WriteFile keeps the mode of an existing file and applies the umask
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting output file mode: %w", err)
	}

	slog.Debug("template rendered", "file", filename, "output", filepath.Base(dst))
	return nil
}
