package odoo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer answers XML-RPC calls with canned responses keyed by method
// name found in the request body.
type fakeServer struct {
	t         *testing.T
	responses map[string]string
	calls     []string
}

func (f *fakeServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		for method, resp := range f.responses {
			if strings.Contains(string(body), "<methodName>"+method+"</methodName>") ||
				strings.Contains(string(body), "<string>"+method+"</string>") {
				f.calls = append(f.calls, method)
				w.Header().Set("Content-Type", "text/xml")
				_, _ = w.Write([]byte(resp))
				return
			}
		}
		f.t.Fatalf("unexpected call: %s", body)
	})
}

func scalarResponse(inner string) string {
	return `<?xml version="1.0"?><methodResponse><params><param><value>` + inner + `</value></param></params></methodResponse>`
}

func newTestClient(t *testing.T, responses map[string]string) (*Client, *fakeServer) {
	t.Helper()
	fake := &fakeServer{t: t, responses: responses}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	client := NewClient(Credentials{
		URL:      srv.URL,
		Database: "shop",
		Username: "admin",
		Password: "secret",
	}, nil)
	return client, fake
}

func authResponses() map[string]string {
	return map[string]string{
		"version": scalarResponse(`<struct><member><name>server_version</name><value><string>saas~18.2+e</string></value></member></struct>`),
		"authenticate": scalarResponse(`<int>2</int>`),
	}
}

func TestAuthenticate(t *testing.T) {
	client, _ := newTestClient(t, authResponses())

	info, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), info.UID)
	require.Equal(t, "saas~18.2+e", info.Version)
	require.True(t, client.Authenticated())
	require.True(t, client.versionAtLeast18())
}

func TestAuthenticateRejected(t *testing.T) {
	responses := authResponses()
	responses["authenticate"] = scalarResponse(`<boolean>0</boolean>`)
	client, _ := newTestClient(t, responses)

	_, err := client.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrInvalidLogin)
	require.False(t, client.Authenticated())
}

func TestExecuteKwRequiresSession(t *testing.T) {
	client, _ := newTestClient(t, nil)
	_, err := client.ExecuteKw(context.Background(), "product.product", "search", []any{}, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func kindSchemaResponse(selection []string, withStorable bool) string {
	var b strings.Builder
	b.WriteString(`<struct><member><name>type</name><value><struct><member><name>selection</name><value><array><data>`)
	for _, v := range selection {
		b.WriteString(`<value><array><data><value><string>` + v + `</string></value><value><string>` + v + ` label</string></value></data></array></value>`)
	}
	b.WriteString(`</data></array></value></member></struct></value></member>`)
	if withStorable {
		b.WriteString(`<member><name>is_storable</name><value><struct><member><name>string</name><value><string>Track Inventory</string></value></member></struct></value></member>`)
	}
	b.WriteString(`</struct>`)
	return scalarResponse(b.String())
}

func TestProductKindProbePrefersProduct(t *testing.T) {
	responses := authResponses()
	responses["fields_get"] = kindSchemaResponse([]string{"consu", "service", "product"}, false)
	client, _ := newTestClient(t, responses)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	kind, err := client.ProductKindFields(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindFields{"type": "product"}, kind)
}

func TestProductKindProbeConsuIsStorable(t *testing.T) {
	responses := authResponses()
	responses["fields_get"] = kindSchemaResponse([]string{"consu", "service", "combo"}, true)
	client, _ := newTestClient(t, responses)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	kind, err := client.ProductKindFields(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindFields{"type": "consu", "is_storable": true}, kind)
}

func TestProductKindProbeFallsBackToFirstAvailable(t *testing.T) {
	responses := authResponses()
	responses["fields_get"] = kindSchemaResponse([]string{"goods", "combo"}, false)
	client, _ := newTestClient(t, responses)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	kind, err := client.ProductKindFields(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindFields{"type": "goods"}, kind)
}

func TestProductKindProbeHardDefault(t *testing.T) {
	responses := authResponses()
	responses["fields_get"] = scalarResponse(`<struct></struct>`)
	client, _ := newTestClient(t, responses)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	kind, err := client.ProductKindFields(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindFields{"type": "consu"}, kind)
}

func TestProductKindProbeCachedPerSession(t *testing.T) {
	responses := authResponses()
	responses["fields_get"] = kindSchemaResponse([]string{"product"}, false)
	client, fake := newTestClient(t, responses)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = client.ProductKindFields(context.Background())
	require.NoError(t, err)
	_, err = client.ProductKindFields(context.Background())
	require.NoError(t, err)

	probes := 0
	for _, call := range fake.calls {
		if call == "fields_get" {
			probes++
		}
	}
	require.Equal(t, 1, probes)
}

func TestFindByBarcodeResolvesTemplate(t *testing.T) {
	responses := authResponses()
	responses["search_read"] = scalarResponse(`<array><data><value><struct>
<member><name>product_tmpl_id</name><value><array><data><value><int>31</int></value><value><string>Cola 1L</string></value></data></array></value></member>
<member><name>name</name><value><string>Cola 1L</string></value></member>
</struct></value></data></array>`)
	client, _ := newTestClient(t, responses)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	id, err := client.FindByBarcode(context.Background(), "7790001001234")
	require.NoError(t, err)
	require.Equal(t, int64(31), id)
}

func TestVersionParsing(t *testing.T) {
	client := NewClient(Credentials{}, nil)
	for version, want := range map[string]bool{
		"18.0":        true,
		"17.0":        false,
		"saas~18.2+e": true,
		"saas~16.4+e": false,
		"garbage":     true,
		"":            true,
	} {
		client.mu.Lock()
		client.version = version
		client.mu.Unlock()
		require.Equal(t, want, client.versionAtLeast18(), "version %q", version)
	}
}
