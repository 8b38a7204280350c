package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/systemstart/launchpad/pkg/logging"
)

// DefaultEndpoint is the platform GraphQL endpoint.
const DefaultEndpoint = "https://api.fly.io/graphql"

// API issues typed GraphQL calls.
type API struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

var _ Typed = (*API)(nil)

// NewAPI creates a GraphQL transport authenticated with token.
func NewAPI(endpoint, token string) *API {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return NewAPIWithClient(endpoint, oauth2.NewClient(context.Background(), src))
}

// NewAPIWithClient creates a GraphQL transport using client as-is.
func NewAPIWithClient(endpoint string, client *http.Client) *API {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &API{
		endpoint: endpoint,
		client:   client,
		logger:   logging.Component("gateway").With("transport", "api"),
	}
}

// APIError carries the structured error payload of a failed call.
type APIError struct {
	Operation  string
	StatusCode int
	Messages   []string
	kind       error
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("%s: http %d: %s", e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Operation, msg)
}

func (e *APIError) Unwrap() error { return e.kind }

func newAPIError(op string, status int, messages []string) *APIError {
	return &APIError{
		Operation:  op,
		StatusCode: status,
		Messages:   messages,
		kind:       classify(strings.Join(messages, "\n")),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *API) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	a.logger.Debug("graphql call", "operation", op)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return newAPIError(op, resp.StatusCode, []string{strings.TrimSpace(string(raw))})
		}
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}

	if len(gr.Errors) > 0 || resp.StatusCode != http.StatusOK {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		if len(msgs) == 0 {
			msgs = append(msgs, http.StatusText(resp.StatusCode))
		}
		return newAPIError(op, resp.StatusCode, msgs)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%s: decoding data: %w", op, err)
	}
	return nil
}

type orgNode struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (o orgNode) toOrganization() Organization {
	return Organization{ID: o.ID, Slug: o.Slug, Name: o.Name, Type: o.Type}
}

const viewerQuery = `query { viewer { id email personalOrganization { id slug name type } } }`

func (a *API) Viewer(ctx context.Context) (Identity, error) {
	var data struct {
		Viewer struct {
			ID                   string  `json:"id"`
			Email                string  `json:"email"`
			PersonalOrganization orgNode `json:"personalOrganization"`
		} `json:"viewer"`
	}
	if err := a.do(ctx, "viewer", viewerQuery, nil, &data); err != nil {
		return Identity{}, err
	}
	return Identity{
		ID:                   data.Viewer.ID,
		Email:                data.Viewer.Email,
		PersonalOrganization: data.Viewer.PersonalOrganization.toOrganization(),
	}, nil
}

const organizationsQuery = `query { organizations { nodes { id slug name type } } }`

func (a *API) Organizations(ctx context.Context) ([]Organization, error) {
	var data struct {
		Organizations struct {
			Nodes []orgNode `json:"nodes"`
		} `json:"organizations"`
	}
	if err := a.do(ctx, "organizations", organizationsQuery, nil, &data); err != nil {
		return nil, err
	}
	out := make([]Organization, 0, len(data.Organizations.Nodes))
	for _, n := range data.Organizations.Nodes {
		out = append(out, n.toOrganization())
	}
	return out, nil
}

const organizationQuery = `query($slug: String!) { organization(slug: $slug) { id slug name type } }`

func (a *API) organizationID(ctx context.Context, slug string) (string, error) {
	var data struct {
		Organization *orgNode `json:"organization"`
	}
	if err := a.do(ctx, "organization", organizationQuery, map[string]any{"slug": slug}, &data); err != nil {
		return "", err
	}
	if data.Organization == nil || data.Organization.ID == "" {
		return "", fmt.Errorf("organization %q: %w", slug, ErrNotFound)
	}
	return data.Organization.ID, nil
}

const addOnPlansQuery = `query { addOnPlans { nodes { id displayName } } }`

func (a *API) addOnPlanID(ctx context.Context, name string) (string, error) {
	var data struct {
		AddOnPlans struct {
			Nodes []struct {
				ID          string `json:"id"`
				DisplayName string `json:"displayName"`
			} `json:"nodes"`
		} `json:"addOnPlans"`
	}
	if err := a.do(ctx, "addOnPlans", addOnPlansQuery, nil, &data); err != nil {
		return "", err
	}
	for _, n := range data.AddOnPlans.Nodes {
		if strings.EqualFold(n.DisplayName, name) || n.ID == name {
			return n.ID, nil
		}
	}
	return "", fmt.Errorf("add-on plan %q: %w", name, ErrNotFound)
}

type appNode struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Hostname     string  `json:"hostname"`
	Status       string  `json:"status"`
	Deployed     bool    `json:"deployed"`
	Organization orgNode `json:"organization"`
	Machines     struct {
		Nodes []struct {
			ID     string `json:"id"`
			State  string `json:"state"`
			Region string `json:"region"`
		} `json:"nodes"`
	} `json:"machines"`
}

func (n appNode) toApp() App {
	app := App{
		ID:           n.ID,
		Name:         n.Name,
		Hostname:     n.Hostname,
		Status:       n.Status,
		Deployed:     n.Deployed,
		Organization: n.Organization.toOrganization(),
	}
	for _, m := range n.Machines.Nodes {
		app.Machines = append(app.Machines, Machine{ID: m.ID, State: m.State, Region: m.Region})
	}
	return app
}

const createAppMutation = `mutation($input: CreateAppInput!) {
  createApp(input: $input) { app { id name hostname status organization { id slug } } }
}`

func (a *API) CreateApp(ctx context.Context, in CreateAppInput) (App, error) {
	orgID, err := a.organizationID(ctx, in.OrgSlug)
	if err != nil {
		return App{}, err
	}

	input := map[string]any{"organizationId": orgID, "name": in.Name}
	if in.Network != "" {
		input["network"] = in.Network
	}

	var data struct {
		CreateApp struct {
			App appNode `json:"app"`
		} `json:"createApp"`
	}
	if err := a.do(ctx, "createApp", createAppMutation, map[string]any{"input": input}, &data); err != nil {
		return App{}, err
	}
	return data.CreateApp.App.toApp(), nil
}

const appQuery = `query($name: String!) {
  app(name: $name) {
    id name hostname status deployed
    organization { id slug }
    machines { nodes { id state region } }
  }
}`

func (a *API) App(ctx context.Context, name string) (App, error) {
	var data struct {
		App *appNode `json:"app"`
	}
	if err := a.do(ctx, "app", appQuery, map[string]any{"name": name}, &data); err != nil {
		return App{}, err
	}
	if data.App == nil {
		return App{}, fmt.Errorf("app %q: %w", name, ErrNotFound)
	}
	return data.App.toApp(), nil
}

const setSecretsMutation = `mutation($input: SetSecretsInput!) {
  setSecrets(input: $input) { release { id version } }
}`

func (a *API) SetSecrets(ctx context.Context, app string, secrets []Secret) error {
	items := make([]map[string]string, 0, len(secrets))
	for _, s := range secrets {
		items = append(items, map[string]string{"key": s.Key, "value": s.Value})
	}
	input := map[string]any{"appId": app, "secrets": items, "replaceAll": false}
	return a.do(ctx, "setSecrets", setSecretsMutation, map[string]any{"input": input}, nil)
}

const createAddOnMutation = `mutation($input: CreateAddOnInput!) {
  createAddOn(input: $input) { addOn { id name publicUrl environment } }
}`

type addOnNode struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	PublicURL   string            `json:"publicUrl"`
	Environment map[string]string `json:"environment"`
}

func (a *API) createAddOn(ctx context.Context, input map[string]any) (addOnNode, error) {
	var data struct {
		CreateAddOn struct {
			AddOn addOnNode `json:"addOn"`
		} `json:"createAddOn"`
	}
	if err := a.do(ctx, "createAddOn", createAddOnMutation, map[string]any{"input": input}, &data); err != nil {
		return addOnNode{}, err
	}
	return data.CreateAddOn.AddOn, nil
}

// CreateCache resolves the organization and the plan concurrently; the
// mutation is only issued once both lookups succeeded.
func (a *API) CreateCache(ctx context.Context, in CreateCacheInput) (Cache, error) {
	plan := in.Plan.Plan
	if plan == "" {
		plan = "Free"
	}

	var orgID, planID string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orgID, err = a.organizationID(gctx, in.OrgSlug)
		return err
	})
	g.Go(func() error {
		var err error
		planID, err = a.addOnPlanID(gctx, plan)
		return err
	})
	if err := g.Wait(); err != nil {
		return Cache{}, err
	}

	input := map[string]any{
		"organizationId": orgID,
		"name":           in.Name,
		"planId":         planID,
		"primaryRegion":  in.Region,
		"readRegions":    in.Plan.Replicas,
		"type":           "upstash_redis",
		"options":        map[string]any{"eviction": in.Plan.Eviction},
	}
	if in.AppName != "" {
		input["appId"] = in.AppName
	}

	node, err := a.createAddOn(ctx, input)
	if err != nil {
		return Cache{}, err
	}
	if node.PublicURL == "" {
		return Cache{ID: node.ID, Name: in.Name}, &DescriptorError{Resource: in.Name, Detail: "createAddOn response has no url"}
	}
	return Cache{ID: node.ID, Name: node.Name, URL: node.PublicURL}, nil
}

// CreateStorage resolves the organization and confirms the app concurrently
// before creating the bucket.
func (a *API) CreateStorage(ctx context.Context, in CreateStorageInput) (Bucket, error) {
	var orgID string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orgID, err = a.organizationID(gctx, in.OrgSlug)
		return err
	})
	if in.AppName != "" {
		g.Go(func() error {
			_, err := a.App(gctx, in.AppName)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Bucket{}, err
	}

	input := map[string]any{
		"organizationId": orgID,
		"name":           in.Name,
		"type":           "tigris",
		"options":        map[string]any{"public": in.Public},
	}
	if in.AppName != "" {
		input["appId"] = in.AppName
	}

	node, err := a.createAddOn(ctx, input)
	if err != nil {
		return Bucket{}, err
	}

	env := node.Environment
	b := Bucket{
		Name:            env["BUCKET_NAME"],
		AccessKeyID:     env["AWS_ACCESS_KEY_ID"],
		SecretAccessKey: env["AWS_SECRET_ACCESS_KEY"],
		Endpoint:        env["AWS_ENDPOINT_URL_S3"],
		Region:          env["AWS_REGION"],
	}
	if b.Name == "" {
		b.Name = node.Name
	}
	if b.AccessKeyID == "" || b.SecretAccessKey == "" {
		return Bucket{Name: b.Name}, &DescriptorError{Resource: b.Name, Detail: "createAddOn response has no credentials"}
	}
	return b, nil
}
