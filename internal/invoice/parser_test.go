package invoice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleFactura = `<?xml version="1.0" encoding="UTF-8"?>
<factura id="comprobante" version="1.1.0">
  <infoTributaria>
    <razonSocial>DISTRIBUIDORA D MUJERES S.A.</razonSocial>
  </infoTributaria>
  <detalles>
    <detalle>
      <codigoPrincipal>INT-0001</codigoPrincipal>
      <codigoAuxiliar>7861000000011</codigoAuxiliar>
      <descripcion>SHAMPOO S&amp;amp;B 400ML</descripcion>
      <cantidad>12.00</cantidad>
      <precioUnitario>2.50</precioUnitario>
      <precioTotalSinImpuesto>27.60</precioTotalSinImpuesto>
    </detalle>
    <detalle>
      <codigoPrincipal>INT-0002</codigoPrincipal>
      <codigoAuxiliar></codigoAuxiliar>
      <descripcion>CREMA   CORPORAL</descripcion>
      <cantidad>6.00</cantidad>
      <precioUnitario>1.80</precioUnitario>
      <precioTotalSinImpuesto>10.80</precioTotalSinImpuesto>
    </detalle>
    <detalle>
      <codigoPrincipal></codigoPrincipal>
      <codigoAuxiliar></codigoAuxiliar>
      <descripcion></descripcion>
      <cantidad>1.00</cantidad>
      <precioUnitario>5.00</precioUnitario>
    </detalle>
  </detalles>
</factura>`

func TestParseDMujeresInvoice(t *testing.T) {
	doc, err := NewParser(nil).Parse(strings.NewReader(sampleFactura), "")
	require.NoError(t, err)
	require.Equal(t, ProviderDMujeres, doc.Provider)
	require.Len(t, doc.Lines, 2)
	require.Equal(t, 1, doc.Skipped)

	// The auxiliary code carries the retail barcode; the double encoded
	// entity unwraps all the way down.
	first := doc.Lines[0]
	require.Equal(t, "7861000000011", first.Barcode)
	require.Equal(t, "SHAMPOO S&B 400ML", first.Description)
	require.InDelta(t, 12, first.Quantity, 1e-9)
	// 27.60 / 12 beats the unit column that ignores the line discount.
	require.InDelta(t, 2.30, first.UnitCost, 1e-9)

	// No auxiliary code falls back to the principal one.
	require.Equal(t, "INT-0002", doc.Lines[1].Barcode)
	require.Equal(t, "CREMA CORPORAL", doc.Lines[1].Description)
}

func TestParseLanseyPrefersPrincipal(t *testing.T) {
	doc := `<factura id="comprobante" version="1.1.0">
  <infoTributaria><razonSocial>LANSEY S.A.</razonSocial></infoTributaria>
  <detalles>
    <detalle>
      <codigoPrincipal>7861000000099</codigoPrincipal>
      <codigoAuxiliar>INTERNAL-9</codigoAuxiliar>
      <descripcion>ESMALTE ROJO</descripcion>
      <cantidad>3</cantidad>
      <precioUnitario>1.20</precioUnitario>
    </detalle>
  </detalles>
</factura>`

	parsed, err := NewParser(nil).Parse(strings.NewReader(doc), "")
	require.NoError(t, err)
	require.Equal(t, ProviderLansey, parsed.Provider)
	require.Equal(t, "7861000000099", parsed.Lines[0].Barcode)
	// No line total, the unit price stands.
	require.InDelta(t, 1.20, parsed.Lines[0].UnitCost, 1e-9)
}

func TestParseEnvelopeWithCDATA(t *testing.T) {
	doc := `<?xml version="1.0"?>
<autorizacion>
  <estado>AUTORIZADO</estado>
  <comprobante><![CDATA[<factura id="comprobante" version="1.1.0">
  <detalles>
    <detalle>
      <codigoAuxiliar>779001</codigoAuxiliar>
      <descripcion>JABON</descripcion>
      <cantidad>4</cantidad>
      <precioUnitario>0.80</precioUnitario>
    </detalle>
  </detalles>
</factura>]]></comprobante>
</autorizacion>`

	parsed, err := NewParser(nil).Parse(strings.NewReader(doc), "")
	require.NoError(t, err)
	require.Len(t, parsed.Lines, 1)
	require.Equal(t, "779001", parsed.Lines[0].Barcode)
}

func TestParseGeneratesBarcodes(t *testing.T) {
	doc := `<factura id="comprobante" version="1.1.0">
  <detalles>
    <detalle>
      <descripcion>PRODUCTO UNO</descripcion>
      <cantidad>1</cantidad>
      <precioUnitario>2.00</precioUnitario>
    </detalle>
    <detalle>
      <descripcion>PRODUCTO DOS</descripcion>
      <cantidad>1</cantidad>
      <precioUnitario>3.00</precioUnitario>
    </detalle>
  </detalles>
</factura>`

	parsed, err := NewParser(nil).Parse(strings.NewReader(doc), "")
	require.NoError(t, err)
	require.Len(t, parsed.Lines, 2)
	require.True(t, parsed.Lines[0].GeneratedBarcode)
	require.Len(t, parsed.Lines[0].Barcode, 14)
	require.NotEqual(t, parsed.Lines[0].Barcode, parsed.Lines[1].Barcode)
}

func TestParseRejectsEmptyInvoice(t *testing.T) {
	doc := `<factura id="comprobante" version="1.1.0"><detalles></detalles></factura>`
	_, err := NewParser(nil).Parse(strings.NewReader(doc), "")
	require.ErrorIs(t, err, ErrNoLines)
}

func TestCleanDescription(t *testing.T) {
	cases := map[string]string{
		"SHAMPOO S&amp;amp;amp;B":      "SHAMPOO S&B",
		"CREMA\t  CORPORAL\n500ML":     "CREMA CORPORAL 500ML",
		"ESMALTE &quot;ROJO&quot;":     `ESMALTE "ROJO"`,
		"ACEITE &nbsp;DE ARGAN":        "ACEITE  DE ARGAN",
		"  TINTE CASTAÑO CLARO  ": "TINTE CASTAÑO CLARO",
	}
	for in, want := range cases {
		require.Equal(t, want, CleanDescription(in), "input %q", in)
	}

	long := strings.Repeat("A", 150)
	require.Len(t, CleanDescription(long), 100)
}
