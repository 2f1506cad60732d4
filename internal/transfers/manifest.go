package transfers

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// The manifest reuses the SRI electronic invoice layout so branch tooling
// that already ingests supplier invoices can read transfer documents with
// the same parser.

// ManifestLine is one product line read back from a manifest document.
type ManifestLine struct {
	Barcode     string  `json:"barcode"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type manifestEnvelope struct {
	XMLName            xml.Name        `xml:"autorizacion"`
	Estado             string          `xml:"estado"`
	NumeroAutorizacion string          `xml:"numeroAutorizacion"`
	FechaAutorizacion  string          `xml:"fechaAutorizacion"`
	Comprobante        manifestPayload `xml:"comprobante"`
}

type manifestPayload struct {
	Data string `xml:",cdata"`
}

type manifestInvoice struct {
	XMLName xml.Name            `xml:"factura"`
	ID      string              `xml:"id,attr"`
	Version string              `xml:"version,attr"`
	Info    manifestInfo        `xml:"infoTributaria"`
	Invoice manifestInvoiceInfo `xml:"infoFactura"`
	Details manifestDetails     `xml:"detalles"`
}

type manifestInfo struct {
	Ambiente    string `xml:"ambiente"`
	RazonSocial string `xml:"razonSocial"`
	RUC         string `xml:"ruc"`
	ClaveAcceso string `xml:"claveAcceso"`
	CodDoc      string `xml:"codDoc"`
}

type manifestInvoiceInfo struct {
	FechaEmision       string `xml:"fechaEmision"`
	RazonSocialComprador string `xml:"razonSocialComprador"`
	TotalSinImpuestos  string `xml:"totalSinImpuestos"`
	ImporteTotal       string `xml:"importeTotal"`
}

type manifestDetails struct {
	Lines []manifestDetail `xml:"detalle"`
}

type manifestDetail struct {
	CodigoPrincipal string `xml:"codigoPrincipal"`
	CodigoAuxiliar  string `xml:"codigoAuxiliar"`
	Descripcion     string `xml:"descripcion"`
	Cantidad        string `xml:"cantidad"`
	PrecioUnitario  string `xml:"precioUnitario"`
	Descuento       string `xml:"descuento"`
	PrecioTotal     string `xml:"precioTotalSinImpuesto"`
}

// BuildManifest renders the transfer document for a prepared item set.
func BuildManifest(code string, items []Snapshot, issuedAt time.Time) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptyTransfer
	}

	var total float64
	details := make([]manifestDetail, 0, len(items))
	for _, it := range items {
		lineTotal := it.Quantity * it.StandardPrice
		total += lineTotal
		details = append(details, manifestDetail{
			CodigoPrincipal: it.Barcode,
			CodigoAuxiliar:  it.Barcode,
			Descripcion:     it.Name,
			Cantidad:        formatAmount(it.Quantity),
			PrecioUnitario:  formatAmount(it.StandardPrice),
			Descuento:       "0.00",
			PrecioTotal:     formatAmount(lineTotal),
		})
	}

	invoice := manifestInvoice{
		ID:      "comprobante",
		Version: "1.1.0",
		Info: manifestInfo{
			Ambiente:    "1",
			RazonSocial: "TRANSFERENCIA INTERNA",
			RUC:         "9999999999999",
			ClaveAcceso: code,
			CodDoc:      "01",
		},
		Invoice: manifestInvoiceInfo{
			FechaEmision:         issuedAt.Format("02/01/2006"),
			RazonSocialComprador: "SUCURSAL",
			TotalSinImpuestos:    formatAmount(total),
			ImporteTotal:         formatAmount(total),
		},
		Details: manifestDetails{Lines: details},
	}

	inner, err := xml.MarshalIndent(invoice, "  ", "  ")
	if err != nil {
		return "", fmt.Errorf("transfers: marshal manifest invoice: %w", err)
	}

	envelope := manifestEnvelope{
		Estado:             "AUTORIZADO",
		NumeroAutorizacion: code,
		FechaAutorizacion:  issuedAt.Format(time.RFC3339),
		Comprobante:        manifestPayload{Data: "\n" + xml.Header + string(inner) + "\n"},
	}
	out, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("transfers: marshal manifest: %w", err)
	}
	return xml.Header + string(out), nil
}

// ParseManifest reads a transfer document, either the full autorizacion
// envelope or a bare factura, and returns its lines.
func ParseManifest(r io.Reader) ([]ManifestLine, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transfers: read manifest: %w", err)
	}

	payload := raw
	if strings.Contains(string(raw), "<autorizacion") {
		var env manifestEnvelope
		if err := xml.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("transfers: parse manifest envelope: %w", err)
		}
		payload = []byte(env.Comprobante.Data)
	}

	var invoice manifestInvoice
	if err := xml.Unmarshal(payload, &invoice); err != nil {
		return nil, fmt.Errorf("transfers: parse manifest invoice: %w", err)
	}

	lines := make([]ManifestLine, 0, len(invoice.Details.Lines))
	for _, d := range invoice.Details.Lines {
		barcode := strings.TrimSpace(d.CodigoAuxiliar)
		if barcode == "" {
			barcode = strings.TrimSpace(d.CodigoPrincipal)
		}
		qty, err := strconv.ParseFloat(strings.TrimSpace(d.Cantidad), 64)
		if err != nil {
			continue
		}
		price, _ := strconv.ParseFloat(strings.TrimSpace(d.PrecioUnitario), 64)
		lines = append(lines, ManifestLine{
			Barcode:     barcode,
			Description: strings.TrimSpace(d.Descripcion),
			Quantity:    qty,
			UnitPrice:   price,
		})
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("transfers: manifest carries no readable lines")
	}
	return lines, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
