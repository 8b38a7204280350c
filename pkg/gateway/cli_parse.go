package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// Everything in this file turns command output into typed values. Nothing
// outside the CLI transport should ever look at raw output.

type statusJSON struct {
	ID           string `json:"ID"`
	Name         string `json:"Name"`
	Hostname     string `json:"Hostname"`
	Status       string `json:"Status"`
	Deployed     bool   `json:"Deployed"`
	Organization struct {
		ID   string `json:"ID"`
		Slug string `json:"Slug"`
	} `json:"Organization"`
	Machines []struct {
		ID     string `json:"id"`
		State  string `json:"state"`
		Region string `json:"region"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	} `json:"Machines"`
}

func parseAppJSON(s string) (App, error) {
	var st statusJSON
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return App{}, fmt.Errorf("decoding app output: %w", err)
	}
	app := App{
		ID:       st.ID,
		Name:     st.Name,
		Hostname: st.Hostname,
		Status:   st.Status,
		Deployed: st.Deployed,
		Organization: Organization{
			ID:   st.Organization.ID,
			Slug: st.Organization.Slug,
		},
	}
	for _, m := range st.Machines {
		app.Machines = append(app.Machines, Machine{ID: m.ID, State: m.State, Region: m.Region})
	}
	return app, nil
}

// parseClusterStatus decodes "status --json" output, falling back to the
// plain machine table older tool versions print.
func parseClusterStatus(name, s string) ClusterStatus {
	var st statusJSON
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return statusFromTable(name, s)
	}

	cs := ClusterStatus{Name: name, Phase: PhasePending, Detail: st.Status}
	if len(st.Machines) == 0 {
		return cs
	}

	running := 0
	var states []string
	for _, m := range st.Machines {
		states = append(states, m.ID+"="+m.State)
		switch strings.ToLower(m.State) {
		case "failed", "destroyed":
			cs.Phase = PhaseFailed
			cs.Detail = strings.Join(states, " ")
			return cs
		case "started":
			healthy := true
			for _, c := range m.Checks {
				if c.Status != "passing" {
					healthy = false
				}
			}
			if healthy {
				running++
			}
		}
	}
	cs.Detail = strings.Join(states, " ")
	if running == len(st.Machines) {
		cs.Phase = PhaseRunning
	}
	return cs
}

// statusFromTable scrapes a table whose header has a STATE column.
func statusFromTable(name, s string) ClusterStatus {
	cs := ClusterStatus{Name: name, Phase: PhaseUnknown, Detail: strings.TrimSpace(s)}

	stateCol := -1
	var states []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if stateCol < 0 {
			for i, f := range fields {
				if strings.EqualFold(f, "STATE") {
					stateCol = i
				}
			}
			continue
		}
		if stateCol < len(fields) {
			states = append(states, strings.ToLower(fields[stateCol]))
		}
	}

	if len(states) == 0 {
		return cs
	}
	cs.Phase = PhaseRunning
	for _, st := range states {
		switch st {
		case "failed", "destroyed", "error":
			cs.Phase = PhaseFailed
			return cs
		case "started", "running", "passing":
		default:
			cs.Phase = PhasePending
		}
	}
	return cs
}

func parseOrganizations(s string) ([]Organization, error) {
	var list []struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		out := make([]Organization, 0, len(list))
		for _, o := range list {
			out = append(out, Organization{ID: o.ID, Slug: o.Slug, Name: o.Name, Type: o.Type})
		}
		return out, nil
	}

	// Older releases print a slug → name object.
	var bySlug map[string]string
	if err := json.Unmarshal([]byte(s), &bySlug); err != nil {
		return nil, fmt.Errorf("decoding organizations output: %w", err)
	}
	out := make([]Organization, 0, len(bySlug))
	for slug, name := range bySlug {
		out = append(out, Organization{Slug: slug, Name: name})
	}
	return out, nil
}

// parseAssignments collects KEY=value and KEY: value lines whose key is an
// upper-case identifier.
func parseAssignments(s string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.Contains(k, " ") {
			k, v, ok = strings.Cut(line, ":")
		}
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if !isEnvKey(k) || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func isEnvKey(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

func parseBucket(name, s string) (Bucket, error) {
	kv := parseAssignments(s)
	b := Bucket{
		Name:            kv["BUCKET_NAME"],
		AccessKeyID:     kv["AWS_ACCESS_KEY_ID"],
		SecretAccessKey: kv["AWS_SECRET_ACCESS_KEY"],
		Endpoint:        kv["AWS_ENDPOINT_URL_S3"],
		Region:          kv["AWS_REGION"],
	}
	if b.Name == "" {
		b.Name = name
	}
	if b.AccessKeyID == "" || b.SecretAccessKey == "" {
		return Bucket{Name: b.Name}, &DescriptorError{Resource: b.Name, Detail: "storage create output has no credentials"}
	}
	return b, nil
}

// findURL returns the first whitespace-delimited token with one of the
// given scheme prefixes.
func findURL(s string, schemes ...string) string {
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, `"'(),`)
		for _, scheme := range schemes {
			if idx := strings.Index(tok, scheme); idx >= 0 {
				return tok[idx:]
			}
		}
	}
	return ""
}
