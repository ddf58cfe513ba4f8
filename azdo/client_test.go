package azdo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, serverUrl string, opts Options) (*Client, *DiagnosticSink) {
	t.Helper()
	if len(opts.Organization) == 0 {
		opts.Organization = "fabrikam"
	}
	if len(opts.PAT) == 0 {
		opts.PAT = "secret"
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 10000
	}
	opts.BaseURL = serverUrl
	var sink = NewDiagnosticSink(zap.NewNop())
	var client, err = NewClient(opts, sink)
	require.NoError(t, err)
	return client, sink
}

func writePage(w http.ResponseWriter, items []map[string]any, token string) {
	if len(token) > 0 {
		w.Header().Set(continuationHeader, token)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count": len(items),
		"value": items,
	})
}

func TestClientRequiresCredentials(t *testing.T) {
	var _, err = NewClient(Options{Organization: "fabrikam"}, nil)
	assert.Error(t, err)

	_, err = NewClient(Options{PAT: "secret"}, nil)
	assert.Error(t, err)
}

func TestClientEndpoints(t *testing.T) {
	var client, _ = NewClient(Options{Organization: "fabrikam", PAT: "secret"}, nil)
	assert.Equal(t, "https://dev.azure.com/fabrikam/", client.coreBase.String())
	assert.Equal(t, "https://vssps.dev.azure.com/fabrikam/", client.graphBase.String())

	client, _ = NewClient(Options{Organization: "fabrikam", PAT: "secret", LegacyEndpoint: true}, nil)
	assert.Equal(t, "https://fabrikam.visualstudio.com/", client.coreBase.String())
	assert.Equal(t, "https://fabrikam.vssps.visualstudio.com/", client.graphBase.String())
}

func TestComposeUrlAddsApiVersion(t *testing.T) {
	var client, _ = NewClient(Options{Organization: "fabrikam", PAT: "secret"}, nil)
	var uri, err = client.composeUrl(client.coreBase, "_apis/projects")
	require.NoError(t, err)
	assert.Equal(t, "/fabrikam/_apis/projects", uri.Path)
	assert.Equal(t, apiVersion, uri.Query().Get("api-version"))
}

func TestExecuteRequestSendsPATHeader(t *testing.T) {
	var authorization string
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		writePage(w, nil, "")
	}))
	defer server.Close()

	var client, _ = newTestClient(t, server.URL, Options{PAT: "token123"})
	var uri, _ = client.composeUrl(client.coreBase, "_apis/projects")
	var _, _, err = client.executeRequest(context.Background(), "GET", uri, nil)
	require.NoError(t, err)

	var user, pass, ok = parseBasicAuth(t, authorization)
	require.True(t, ok)
	assert.Empty(t, user)
	assert.Equal(t, "token123", pass)
}

func parseBasicAuth(t *testing.T, header string) (user string, pass string, ok bool) {
	t.Helper()
	var rq, err = http.NewRequest("GET", "http://localhost/", nil)
	require.NoError(t, err)
	rq.Header.Set("Authorization", header)
	return rq.BasicAuth()
}

func TestExecuteRequestRetriesServerErrors(t *testing.T) {
	var requests = 0
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writePage(w, []map[string]any{{"id": "p1", "name": "One"}}, "")
	}))
	defer server.Close()

	var client, _ = newTestClient(t, server.URL, Options{RetryAttempts: 3})
	var projects, err = client.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, requests)
	require.Len(t, projects, 1)
	assert.Equal(t, "One", projects[0].Name)
}

func TestExecuteRequestDoesNotRetryClientErrors(t *testing.T) {
	var requests = 0
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such resource"))
	}))
	defer server.Close()

	var client, _ = newTestClient(t, server.URL, Options{RetryAttempts: 3})
	var uri, _ = client.composeUrl(client.coreBase, "_apis/projects")
	var _, _, err = client.executeRequest(context.Background(), "GET", uri, nil)
	require.Error(t, err)
	assert.Equal(t, 1, requests)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Contains(t, re.Body, "no such resource")
}
