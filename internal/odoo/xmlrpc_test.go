package odoo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalCall(t *testing.T) {
	body, err := marshalCall("execute_kw", []any{
		"shop", int64(2), "secret",
		"product.product", "search_read",
		[]any{[]any{[]any{"barcode", "=", "779<123"}}},
		map[string]any{"fields": []any{"name"}},
	})
	require.NoError(t, err)

	s := string(body)
	require.Contains(t, s, "<methodName>execute_kw</methodName>")
	require.Contains(t, s, "<string>product.product</string>")
	require.Contains(t, s, "<int>2</int>")
	require.Contains(t, s, "779&lt;123")
	require.Contains(t, s, "<member><name>fields</name>")
}

func TestMarshalCallRejectsUnknownType(t *testing.T) {
	_, err := marshalCall("m", []any{struct{}{}})
	require.Error(t, err)
}

func TestUnmarshalResponseScalar(t *testing.T) {
	resp := `<?xml version="1.0"?>
<methodResponse><params><param><value><int>42</int></value></param></params></methodResponse>`
	v, err := unmarshalResponse(strings.NewReader(resp))
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestUnmarshalResponseStructAndArray(t *testing.T) {
	resp := `<?xml version="1.0"?>
<methodResponse><params><param><value><array><data>
  <value><struct>
    <member><name>id</name><value><int>7</int></value></member>
    <member><name>name</name><value><string>Cola 1L</string></value></member>
    <member><name>list_price</name><value><double>1.25</double></value></member>
    <member><name>barcode</name><value><boolean>0</boolean></value></member>
  </struct></value>
</data></array></value></param></params></methodResponse>`
	v, err := unmarshalResponse(strings.NewReader(resp))
	require.NoError(t, err)

	rows, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	require.Equal(t, int64(7), row["id"])
	require.Equal(t, "Cola 1L", row["name"])
	require.InDelta(t, 1.25, row["list_price"], 1e-9)
	require.Equal(t, false, row["barcode"])
}

func TestUnmarshalResponseBareValueIsString(t *testing.T) {
	resp := `<?xml version="1.0"?>
<methodResponse><params><param><value>18.0</value></param></params></methodResponse>`
	v, err := unmarshalResponse(strings.NewReader(resp))
	require.NoError(t, err)
	require.Equal(t, "18.0", v)
}

func TestUnmarshalResponseFault(t *testing.T) {
	resp := `<?xml version="1.0"?>
<methodResponse><fault><value><struct>
  <member><name>faultCode</name><value><int>1</int></value></member>
  <member><name>faultString</name><value><string>ValueError: Wrong value for product.template.type</string></value></member>
</struct></value></fault></methodResponse>`
	_, err := unmarshalResponse(strings.NewReader(resp))
	require.Error(t, err)
	fault, ok := err.(*Fault)
	require.True(t, ok)
	require.Equal(t, 1, fault.Code)
	require.Contains(t, fault.Message, "Wrong value")
}
