package transfers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	items := []Snapshot{
		{Name: "Cafe Molido 500g", Barcode: "7861000000011", Quantity: 4, StandardPrice: 3.25},
		{Name: "Azucar 1kg", Barcode: "7861000000028", Quantity: 10, StandardPrice: 1.10},
	}

	doc, err := BuildManifest("a3f0c1d2", items, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Contains(t, doc, "<autorizacion>")
	require.Contains(t, doc, "CDATA")
	require.Contains(t, doc, "a3f0c1d2")

	lines, err := ParseManifest(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "7861000000011", lines[0].Barcode)
	require.Equal(t, "Cafe Molido 500g", lines[0].Description)
	require.InDelta(t, 4, lines[0].Quantity, 1e-9)
	require.InDelta(t, 3.25, lines[0].UnitPrice, 1e-9)
	require.InDelta(t, 10, lines[1].Quantity, 1e-9)
}

func TestParseManifestBareInvoice(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<factura id="comprobante" version="1.1.0">
  <detalles>
    <detalle>
      <codigoPrincipal>779001</codigoPrincipal>
      <descripcion>Shampoo</descripcion>
      <cantidad>2.00</cantidad>
      <precioUnitario>4.50</precioUnitario>
    </detalle>
  </detalles>
</factura>`

	lines, err := ParseManifest(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	// codigoAuxiliar is missing, codigoPrincipal stands in.
	require.Equal(t, "779001", lines[0].Barcode)
	require.InDelta(t, 2, lines[0].Quantity, 1e-9)
}

func TestParseManifestRejectsEmptyDocument(t *testing.T) {
	doc := `<?xml version="1.0"?><factura id="comprobante" version="1.1.0"><detalles></detalles></factura>`
	_, err := ParseManifest(strings.NewReader(doc))
	require.Error(t, err)
}

func TestBuildManifestRejectsEmptySet(t *testing.T) {
	_, err := BuildManifest("x", nil, time.Now())
	require.ErrorIs(t, err, ErrEmptyTransfer)
}
