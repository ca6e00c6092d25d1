package commands_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfdevsllc/rocketctl/internal/cli"
	"github.com/wolfdevsllc/rocketctl/internal/commands"
	"github.com/wolfdevsllc/rocketctl/internal/output"
)

func newRoot() *cobra.Command {
	root := cli.NewRootCmd()
	cli.AddCommands(root)
	return root
}

func TestCatalogMatchesRegisteredCommands(t *testing.T) {
	root := newRoot()

	// Trigger Cobra's auto-addition of help subcommand
	root.InitDefaultHelpCmd()

	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		if cmd.Name() == "help" {
			continue
		}
		registered[cmd.Name()] = true
	}

	catalog := make(map[string]bool)
	for _, name := range commands.CatalogCommandNames() {
		catalog[name] = true
	}

	var missingFromRegistered, missingFromCatalog []string
	for name := range catalog {
		if !registered[name] {
			missingFromRegistered = append(missingFromRegistered, name)
		}
	}
	for name := range registered {
		if !catalog[name] {
			missingFromCatalog = append(missingFromCatalog, name)
		}
	}
	sort.Strings(missingFromRegistered)
	sort.Strings(missingFromCatalog)

	assert.Empty(t, missingFromRegistered, "Commands in catalog but not registered: %v", missingFromRegistered)
	assert.Empty(t, missingFromCatalog, "Commands registered but not in catalog: %v", missingFromCatalog)
}

func TestOfflineAnnotations(t *testing.T) {
	assert.True(t, commands.IsOffline(commands.NewVersionCmd()))
	assert.True(t, commands.IsOffline(commands.NewCommandsCmd()))
	assert.True(t, commands.IsOffline(commands.NewConfigCmd()))
	assert.False(t, commands.IsOffline(commands.NewSitesCmd()))
	assert.False(t, commands.IsOffline(commands.NewServeCmd()))
}

// provider is a minimal Rocket.net API.
type provider struct {
	mu     sync.Mutex
	logins int
	calls  []string
	bodies map[string]map[string]any
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(srv.Close)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ROCKET_STORE", "memory")
	t.Setenv("ROCKET_CACHE_BACKEND", "memory")
	t.Setenv("ROCKET_API_URL", srv.URL+"/v1")
	t.Setenv("ROCKET_EMAIL", "ops@example.com")
	t.Setenv("ROCKET_PASSWORD", "hunter2")
	return p
}

func (p *provider) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/v1/")
	p.calls = append(p.calls, key)
	if r.ContentLength > 0 {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.bodies[key] = body
	}

	w.Header().Set("Content-Type", "application/json")
	switch key {
	case "POST login":
		p.logins++
		_, _ = w.Write([]byte(`{"token":"tok-1"}`))
	case "GET sites/42":
		_, _ = w.Write([]byte(`{"success":true,"result":{"id":42,"domain":"shop.example.com","name":"shop"}}`))
	case "DELETE sites/42":
		_, _ = w.Write([]byte(`{"success":true}`))
	case "POST partner/sites":
		_, _ = w.Write([]byte(`{"success":true,"result":{"id":77,"domain":"new.example.com"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not found"}`))
	}
}

func (p *provider) sawCall(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == key {
			return true
		}
	}
	return false
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRoot()
	root.SetArgs(append(args, "--json"))
	return root.ExecuteContext(context.Background())
}

func TestSitesGetLogsInOnce(t *testing.T) {
	p := newProvider(t)

	require.NoError(t, run(t, "sites", "get", "42"))
	assert.Equal(t, 1, p.logins)
	assert.True(t, p.sawCall("GET sites/42"))
}

func TestSitesGetNotFound(t *testing.T) {
	newProvider(t)

	err := run(t, "sites", "get", "99")
	var outErr *output.Error
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, output.CodeNotFound, outErr.Code)
}

func TestSitesDeleteRequiresConfirmation(t *testing.T) {
	p := newProvider(t)

	err := run(t, "sites", "delete", "42")
	var outErr *output.Error
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, output.CodeUsage, outErr.Code)
	assert.False(t, p.sawCall("DELETE sites/42"))

	require.NoError(t, run(t, "sites", "delete", "42", "--yes"))
	assert.True(t, p.sawCall("DELETE sites/42"))
}

func TestSitesCreateSendsBody(t *testing.T) {
	p := newProvider(t)

	require.NoError(t, run(t, "sites", "create",
		"--domain", "new.example.com",
		"--name", "new",
		"--admin-email", "owner@example.com",
		"--location", "21",
		"--plugins", "woocommerce, jetpack",
	))

	p.mu.Lock()
	body := p.bodies["POST partner/sites"]
	p.mu.Unlock()
	require.NotNil(t, body)
	assert.True(t, p.sawCall("POST partner/sites"))
	assert.Equal(t, "new.example.com", body["domain"])
	assert.Equal(t, "owner@example.com", body["admin_email"])
	assert.EqualValues(t, 21, body["location"])
}

func TestSitesCreateRejectsBadEmail(t *testing.T) {
	p := newProvider(t)

	err := run(t, "sites", "create", "--domain", "new.example.com", "--name", "new", "--admin-email", "not-an-email")
	var outErr *output.Error
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, output.CodeInvalidInput, outErr.Code)
	assert.False(t, p.sawCall("POST partner/sites"))
	p.mu.Lock()
	assert.Empty(t, p.calls, "validation runs before any provider request")
	p.mu.Unlock()
}

func TestSitesListBadFilter(t *testing.T) {
	newProvider(t)

	err := run(t, "sites", "list", "--filter", "nokey")
	var outErr *output.Error
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, output.CodeUsage, outErr.Code)
}

func TestConfigCredentialsNonInteractive(t *testing.T) {
	newProvider(t)

	require.NoError(t, run(t, "config", "credentials", "--email", "new@example.com", "--password", "s3cret"))

	err := run(t, "config", "credentials", "--email", "bad", "--password", "s3cret")
	var outErr *output.Error
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, output.CodeInvalidInput, outErr.Code)
}

func TestVersionRunsOffline(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ROCKET_STORE", "postgres")
	t.Setenv("ROCKET_DATABASE_URL", "postgres://nowhere.invalid/db")

	require.NoError(t, run(t, "version"))
	require.NoError(t, run(t, "commands"))
}
