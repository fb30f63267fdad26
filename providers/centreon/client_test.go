package centreon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

// fakeCLAPI is an in-process Centreon REST endpoint that records calls
type fakeCLAPI struct {
	t         *testing.T
	mu        sync.Mutex
	calls     []clapiRequest
	responses map[string]any // "ACTION OBJECT" -> result, or apiFailure
	denyAuth  bool
	auths     int
	token     string // the only token accepted on action calls
	// rejectTokens refuses every action call, as for a user without API access
	rejectTokens bool
}

type apiFailure struct {
	status int
	detail string
}

func newFakeCLAPI(t *testing.T) (*fakeCLAPI, *httptest.Server) {
	fake := &fakeCLAPI{t: t, responses: make(map[string]any)}
	server := httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeCLAPI) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "authenticate":
		assert.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		deny := f.denyAuth
		f.mu.Unlock()
		if deny || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode("Invalid credentials")
			return
		}
		f.mu.Lock()
		f.auths++
		f.token = fmt.Sprintf("tok-%d", f.auths)
		token := f.token
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(authResponse{AuthToken: token})
	case "action":
		assert.Equal(f.t, "centreon_clapi", r.URL.Query().Get("object"))
		f.mu.Lock()
		valid := !f.rejectTokens && f.token != "" && r.Header.Get(tokenHeader) == f.token
		f.mu.Unlock()
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode("Unauthorized")
			return
		}

		var req clapiRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.calls = append(f.calls, req)
		result, ok := f.responses[req.Action+" "+req.Object]
		f.mu.Unlock()

		if failure, isFailure := result.(apiFailure); isFailure {
			w.WriteHeader(failure.status)
			_ = json.NewEncoder(w).Encode(failure.detail)
			return
		}
		if !ok {
			result = []any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// expire invalidates the current session token
func (f *fakeCLAPI) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
}

func (f *fakeCLAPI) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths
}

func (f *fakeCLAPI) recorded() []clapiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]clapiRequest(nil), f.calls...)
}

func connect(t *testing.T, server *httptest.Server) *Client {
	client := NewClient(providers.ProviderConfig{URL: server.URL + "/", Username: "admin", Password: "secret"})
	require.NoError(t, client.Connect(context.Background()))
	return client
}

func TestClient_ConnectFailure(t *testing.T) {
	_, server := newFakeCLAPI(t)
	client := NewClient(providers.ProviderConfig{URL: server.URL, Username: "admin", Password: "wrong"})

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConnection))
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestClient_ConnectUnreachable(t *testing.T) {
	client := NewClient(providers.ProviderConfig{URL: "http://127.0.0.1:1", Password: "secret"})
	err := client.Connect(context.Background())
	assert.True(t, errors.Is(err, types.ErrConnection))
}

func TestClient_RegisteredFactory(t *testing.T) {
	_, server := newFakeCLAPI(t)

	client, err := providers.GetProvider(context.Background(), ProviderName, providers.ProviderConfig{
		URL: server.URL, Username: "admin", Password: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestClient_ResolvePoller(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["show INSTANCE"] = []map[string]any{
		{"id": 1, "name": "Central"},
		{"id": 2, "name": "Central-2"},
	}
	client := connect(t, server)

	poller, err := client.ResolvePoller(context.Background(), "Central")
	require.NoError(t, err)
	assert.Equal(t, "1", poller.ID)

	_, err = client.ResolvePoller(context.Background(), "Edge")
	assert.ErrorIs(t, err, providers.ErrNotFound)
}

func TestClient_PublishConfig(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	client := connect(t, server)

	require.NoError(t, client.PublishConfig(context.Background(), "Central"))
	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, clapiRequest{Action: "APPLYCFG", Values: "Central"}, calls[0])
}

func TestClient_APIErrorDetail(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["setparam HOST"] = apiFailure{status: http.StatusConflict, detail: "Object not found"}
	client := connect(t, server)

	hosts, err := client.Entities(types.KindHost)
	require.NoError(t, err)

	err = hosts.SetAttribute(context.Background(), types.Identity{Name: "web01"}, "alias", "Web")
	var apiErr *providers.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Object not found", apiErr.Detail)
	assert.Equal(t, "setparam", apiErr.Action)
}

func TestClient_ReauthenticatesExpiredSession(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["show HOST"] = []any{map[string]any{"id": "7", "name": "web01", "activate": "1"}}
	client := connect(t, server)

	hosts, err := client.Entities(types.KindHost)
	require.NoError(t, err)
	id := types.Identity{Name: "web01"}

	_, found, err := hosts.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, found)

	fake.expire()

	_, found, err = hosts.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, fake.authCount())
	assert.Len(t, fake.recorded(), 2, "the rejected call is not recorded, the replay is")
}

func TestClient_ExpiredSessionWithoutCredentials(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *fakeCLAPI)
	}{
		{"login refused", func(f *fakeCLAPI) { f.denyAuth = true }},
		{"new token rejected too", func(f *fakeCLAPI) { f.rejectTokens = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, server := newFakeCLAPI(t)
			client := connect(t, server)
			hosts, err := client.Entities(types.KindHost)
			require.NoError(t, err)

			fake.expire()
			fake.mu.Lock()
			tt.prepare(fake)
			fake.mu.Unlock()

			err = hosts.SetAttribute(context.Background(), types.Identity{Name: "web01"}, "alias", "Web")
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConnection))
			assert.Equal(t, types.ErrorConnection, types.KindOf(err))
		})
	}
}

func TestClient_UnsupportedKind(t *testing.T) {
	_, server := newFakeCLAPI(t)
	client := connect(t, server)

	_, err := client.Entities("router")
	assert.Error(t, err)
}

func TestEntityAPI_GetHost(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["show HOST"] = []map[string]any{
		{"id": "10", "name": "web01-old", "alias": "x", "address": "10.0.0.9", "activate": "1"},
		{"id": "11", "name": "web01", "alias": "Web", "address": "10.0.0.1", "activate": "0"},
	}
	client := connect(t, server)
	hosts, err := client.Entities(types.KindHost)
	require.NoError(t, err)

	entity, found, err := hosts.Get(context.Background(), types.Identity{Name: "web01"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, entity.Activate)
	assert.Equal(t, "Web", entity.Attributes["alias"])
	assert.Equal(t, "10.0.0.1", entity.Attributes["address"])

	_, found, err = hosts.Get(context.Background(), types.Identity{Name: "db01"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntityAPI_GetRejectsMalformedActivate(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["show HOST"] = []map[string]any{{"name": "web01", "activate": "yes"}}
	client := connect(t, server)
	hosts, _ := client.Entities(types.KindHost)

	_, _, err := hosts.Get(context.Background(), types.Identity{Name: "web01"})
	var apiErr *providers.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestEntityAPI_GetServiceReadsTemplateParam(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["show SERVICE"] = []map[string]any{
		{"host name": "db01", "description": "Disk", "activate": "1"},
		{"host name": "web01", "description": "Disk", "activate": "1"},
	}
	fake.responses["getparam SERVICE"] = []map[string]any{{"template": "generic-disk"}}
	client := connect(t, server)
	services, _ := client.Entities(types.KindService)

	entity, found, err := services.Get(context.Background(), types.Identity{Host: "web01", Name: "Disk"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "generic-disk", entity.Attributes["template"])

	calls := fake.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "web01;Disk;template", calls[1].Values)
}

func TestEntityAPI_CommandHasNoActivation(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["show CMD"] = []map[string]any{{"name": "check_ping", "type": "check", "line": "$USER1$/check_ping"}}
	fake.responses["getparam CMD"] = []any{map[string]any{"graph": "", "example": "!1", "comment": "ping"}}
	client := connect(t, server)
	commands, _ := client.Entities(types.KindCommand)

	entity, found, err := commands.Get(context.Background(), types.Identity{Name: "check_ping"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, entity.Activate)
	assert.Equal(t, "check", entity.Attributes["type"])
	assert.Equal(t, "ping", entity.Attributes["comment"])

	assert.Error(t, commands.Disable(context.Background(), types.Identity{Name: "check_ping"}))
}

func TestEntityAPI_WireFormat(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	client := connect(t, server)
	ctx := context.Background()
	web := types.Identity{Name: "web01"}
	disk := types.Identity{Host: "web01", Name: "Disk"}

	hosts, _ := client.Entities(types.KindHost)
	services, _ := client.Entities(types.KindService)
	templates, _ := client.Entities(types.KindServiceTemplate)
	commands, _ := client.Entities(types.KindCommand)

	require.NoError(t, hosts.Create(ctx, providers.CreateRequest{
		Identity:   web,
		Instance:   "Central",
		Attributes: map[string]string{"alias": "Web", "address": "10.0.0.1"},
		Templates:  []string{"generic-host", "linux"},
		HostGroups: []string{"www"},
	}))
	require.NoError(t, services.Create(ctx, providers.CreateRequest{Identity: disk, Attributes: map[string]string{"template": "generic-disk"}}))
	require.NoError(t, templates.Create(ctx, providers.CreateRequest{Identity: types.Identity{Name: "stpl-disk"}, Attributes: map[string]string{"alias": "Disk", "template": "generic"}}))
	require.NoError(t, commands.Create(ctx, providers.CreateRequest{Identity: types.Identity{Name: "check_ping"}, Attributes: map[string]string{"type": "check", "line": "/bin/ping"}}))
	require.NoError(t, hosts.Disable(ctx, web))
	require.NoError(t, services.Enable(ctx, disk))
	require.NoError(t, hosts.AddAssociation(ctx, web, types.AssocHostGroups, []string{"www", "linux"}))
	require.NoError(t, hosts.RemoveAssociation(ctx, web, types.AssocContacts, []string{"ops"}))
	require.NoError(t, services.SetMacro(ctx, disk, types.Item{Name: "WARN", Value: "80", IsPassword: true, Description: "warn"}))
	require.NoError(t, services.DeleteMacro(ctx, disk, "$_SERVICECRIT$"))
	require.NoError(t, hosts.ApplyTemplates(ctx, web))
	require.NoError(t, services.Delete(ctx, disk))

	want := []clapiRequest{
		{Action: "add", Object: "HOST", Values: "web01;Web;10.0.0.1;generic-host|linux;Central;www"},
		{Action: "add", Object: "SERVICE", Values: "web01;Disk;generic-disk"},
		{Action: "add", Object: "STPL", Values: "stpl-disk;Disk;generic"},
		{Action: "add", Object: "CMD", Values: "check_ping;check;/bin/ping"},
		{Action: "disable", Object: "HOST", Values: "web01"},
		{Action: "setparam", Object: "SERVICE", Values: "web01;Disk;activate;1"},
		{Action: "addhostgroup", Object: "HOST", Values: "web01;www|linux"},
		{Action: "delcontact", Object: "HOST", Values: "web01;ops"},
		{Action: "setmacro", Object: "SERVICE", Values: "web01;Disk;WARN;80;1;warn"},
		{Action: "delmacro", Object: "SERVICE", Values: "web01;Disk;$_SERVICECRIT$"},
		{Action: "applytpl", Object: "HOST", Values: "web01"},
		{Action: "del", Object: "SERVICE", Values: "web01;Disk"},
	}
	assert.Equal(t, want, fake.recorded())
}

func TestEntityAPI_Macros(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["getmacro HOST"] = []map[string]any{
		{"macro name": "$_HOSTSNMP$", "macro value": "public", "is_password": "1", "description": "community"},
		{"macro name": "$_HOSTPORT$", "macro value": "161", "is_password": "0", "description": ""},
	}
	client := connect(t, server)
	hosts, _ := client.Entities(types.KindHost)

	macros, err := hosts.Macros(context.Background(), types.Identity{Name: "web01"})
	require.NoError(t, err)
	require.Len(t, macros, 2)
	assert.True(t, macros["$_HOSTSNMP$"].IsPassword)
	assert.Equal(t, "community", macros["$_HOSTSNMP$"].Description)
	assert.Equal(t, "161", macros["$_HOSTPORT$"].Value)

	commands, _ := client.Entities(types.KindCommand)
	_, err = commands.Macros(context.Background(), types.Identity{Name: "check_ping"})
	assert.Error(t, err)
}

func TestEntityAPI_Associations(t *testing.T) {
	fake, server := newFakeCLAPI(t)
	fake.responses["getcontactgroup STPL"] = []map[string]any{{"id": "3", "name": "admins"}}
	client := connect(t, server)
	templates, _ := client.Entities(types.KindServiceTemplate)

	groups, err := templates.Associations(context.Background(), types.Identity{Name: "stpl-disk"}, types.AssocContactGroups)
	require.NoError(t, err)
	assert.Contains(t, groups, "admins")

	_, err = templates.Associations(context.Background(), types.Identity{Name: "stpl-disk"}, types.AssocHostGroups)
	assert.Error(t, err)
}

func TestEntityAPI_ParamsShapes(t *testing.T) {
	tests := []struct {
		name   string
		result any
		names  []string
		want   map[string]string
	}{
		{
			name:   "list of maps",
			result: []any{map[string]any{"max_check_attempts": "3", "check_period": "24x7"}},
			names:  []string{"max_check_attempts", "check_period"},
			want:   map[string]string{"max_check_attempts": "3", "check_period": "24x7"},
		},
		{
			name:   "single map",
			result: map[string]any{"notes": "hi"},
			names:  []string{"notes"},
			want:   map[string]string{"notes": "hi"},
		},
		{
			name:   "positional strings",
			result: []any{"5", "10"},
			names:  []string{"a", "b"},
			want:   map[string]string{"a": "5", "b": "10"},
		},
		{
			name:   "bare value",
			result: "1",
			names:  []string{"a"},
			want:   map[string]string{"a": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, server := newFakeCLAPI(t)
			fake.responses["getparam HOST"] = tt.result
			client := connect(t, server)
			hosts, _ := client.Entities(types.KindHost)

			got, err := hosts.Params(context.Background(), types.Identity{Name: "web01"}, tt.names)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	_, server := newFakeCLAPI(t)
	client := NewClient(providers.ProviderConfig{URL: server.URL, Username: "admin", Password: "secret", RateLimit: 0.001})
	require.NoError(t, client.Connect(context.Background()))

	// First call consumes the burst token
	require.NoError(t, client.PublishConfig(context.Background(), "Central"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, client.PublishConfig(ctx, "Central"))
}
