package gateway

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// MinCLIVersion is the oldest tool release whose flags and JSON output the
// CLI transport understands.
const MinCLIVersion = "0.2.0"

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?)`)

// ParseToolVersion extracts the semantic version from a version line such as
// "fly v0.3.45 linux/amd64 Commit: ...".
func ParseToolVersion(line string) (*semver.Version, error) {
	m := versionPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("no version in %q", line)
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid tool version %q: %w", m[1], err)
	}
	return v, nil
}

// CheckVersion fails when the installed tool is older than MinCLIVersion.
func (c *CLI) CheckVersion(ctx context.Context) error {
	line, err := c.Version(ctx)
	if err != nil {
		return fmt.Errorf("querying tool version: %w", err)
	}
	v, err := ParseToolVersion(line)
	if err != nil {
		return err
	}

	constraint, err := semver.NewConstraint(">= " + MinCLIVersion)
	if err != nil {
		return fmt.Errorf("invalid minimum version: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("tool version %s is older than required %s", v, MinCLIVersion)
	}
	c.logger.Debug("tool version ok", "version", v.String())
	return nil
}
