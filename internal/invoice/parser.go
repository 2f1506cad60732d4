// Package invoice ingests SRI electronic invoices from suppliers and maps
// their lines into catalog products. Supplier layouts differ in which code
// column carries the retail barcode, so parsing is driven by a provider
// profile.
package invoice

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Provider profiles.
const (
	ProviderGeneric  = "generic"
	ProviderDMujeres = "dmujeres"
	ProviderLansey   = "lansey"
)

var ErrNoLines = errors.New("invoice: document carries no usable lines")

// Line is one parsed invoice line. GeneratedBarcode marks codes synthesized
// for lines whose supplier shipped none.
type Line struct {
	Description      string  `json:"description"`
	Barcode          string  `json:"barcode"`
	Quantity         float64 `json:"quantity"`
	UnitCost         float64 `json:"unit_cost"`
	GeneratedBarcode bool    `json:"generated_barcode,omitempty"`
}

// Document is a fully parsed invoice.
type Document struct {
	Provider    string `json:"provider"`
	RazonSocial string `json:"razon_social,omitempty"`
	Lines       []Line `json:"lines"`
	Skipped     int    `json:"skipped"`
}

type invoiceEnvelope struct {
	XMLName     xml.Name `xml:"autorizacion"`
	Comprobante string   `xml:"comprobante"`
}

type invoiceDoc struct {
	XMLName xml.Name `xml:"factura"`
	Info    struct {
		RazonSocial string `xml:"razonSocial"`
	} `xml:"infoTributaria"`
	Details struct {
		Lines []invoiceDetail `xml:"detalle"`
	} `xml:"detalles"`
}

type invoiceDetail struct {
	CodigoPrincipal string `xml:"codigoPrincipal"`
	CodigoAuxiliar  string `xml:"codigoAuxiliar"`
	Descripcion     string `xml:"descripcion"`
	Cantidad        string `xml:"cantidad"`
	PrecioUnitario  string `xml:"precioUnitario"`
	PrecioTotal     string `xml:"precioTotalSinImpuesto"`
}

// Parser turns supplier XML into catalog-ready lines.
type Parser struct {
	logger *slog.Logger
}

// NewParser constructs a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse reads an invoice, either the autorizacion envelope with a CDATA
// comprobante or a bare factura. An empty provider selects the generic
// profile; razon social sniffing upgrades it when the issuer is recognized.
func (p *Parser) Parse(r io.Reader, provider string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("invoice: read document: %w", err)
	}

	payload := raw
	if strings.Contains(string(raw), "<autorizacion") {
		var env invoiceEnvelope
		if err := xml.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("invoice: parse envelope: %w", err)
		}
		payload = []byte(env.Comprobante)
	}

	var doc invoiceDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("invoice: parse factura: %w", err)
	}

	if provider == "" || provider == ProviderGeneric {
		provider = sniffProvider(doc.Info.RazonSocial)
	}

	out := &Document{Provider: provider, RazonSocial: strings.TrimSpace(doc.Info.RazonSocial)}
	seen := make(map[string]bool)
	for _, d := range doc.Details.Lines {
		line, ok := p.parseLine(d, provider, seen)
		if !ok {
			out.Skipped++
			continue
		}
		out.Lines = append(out.Lines, line)
	}
	if len(out.Lines) == 0 {
		return nil, ErrNoLines
	}

	p.logger.Info("invoice parsed",
		slog.String("provider", provider),
		slog.Int("lines", len(out.Lines)),
		slog.Int("skipped", out.Skipped),
	)
	return out, nil
}

func (p *Parser) parseLine(d invoiceDetail, provider string, seen map[string]bool) (Line, bool) {
	desc := CleanDescription(d.Descripcion)
	qty, _ := strconv.ParseFloat(strings.TrimSpace(d.Cantidad), 64)
	unit, _ := strconv.ParseFloat(strings.TrimSpace(d.PrecioUnitario), 64)
	total, _ := strconv.ParseFloat(strings.TrimSpace(d.PrecioTotal), 64)

	// The line total divided by quantity absorbs per-line discounts the
	// unit price column does not reflect.
	cost := unit
	if total > 0 && qty > 0 {
		cost = total / qty
	}
	if desc == "" || qty <= 0 || cost <= 0 {
		p.logger.Warn("invoice line skipped",
			slog.String("description", desc),
			slog.Float64("quantity", qty),
			slog.Float64("cost", cost),
		)
		return Line{}, false
	}

	barcode := pickBarcode(d, provider)
	generated := false
	if barcode == "" {
		barcode = generateBarcode(desc, seen)
		generated = true
	}
	seen[barcode] = true

	return Line{
		Description:      desc,
		Barcode:          barcode,
		Quantity:         qty,
		UnitCost:         cost,
		GeneratedBarcode: generated,
	}, true
}

// pickBarcode chooses the code column by provider profile. D'Mujeres ships
// the retail barcode in codigoAuxiliar, Lansey in codigoPrincipal.
func pickBarcode(d invoiceDetail, provider string) string {
	principal := strings.TrimSpace(d.CodigoPrincipal)
	auxiliar := strings.TrimSpace(d.CodigoAuxiliar)
	switch provider {
	case ProviderLansey:
		if principal != "" {
			return principal
		}
		return auxiliar
	default:
		if auxiliar != "" {
			return auxiliar
		}
		return principal
	}
}

func sniffProvider(razonSocial string) string {
	upper := strings.ToUpper(razonSocial)
	switch {
	case strings.Contains(upper, "MUJERES"):
		return ProviderDMujeres
	case strings.Contains(upper, "LANSEY"):
		return ProviderLansey
	default:
		return ProviderGeneric
	}
}

var leftoverEntity = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanDescription strips the HTML entity soup some suppliers double encode
// into descriptions and normalizes the remainder to NFC.
func CleanDescription(s string) string {
	// Double and triple encoded entities unwrap one layer per pass.
	for i := 0; i < 10; i++ {
		next := html.UnescapeString(s)
		next = strings.ReplaceAll(next, "&amp;", "&")
		if next == s {
			break
		}
		s = next
	}
	s = leftoverEntity.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(norm.NFC.String(s))
	if runes := []rune(s); len(runes) > 100 {
		s = strings.TrimSpace(string(runes[:100]))
	}
	return s
}

// generateBarcode synthesizes a 14 digit-and-hex code that is stable enough
// to be unique within one parsing session.
func generateBarcode(desc string, seen map[string]bool) string {
	ts := time.Now().UnixMilli()
	for {
		stamp := strconv.FormatInt(ts, 10)
		suffix := stamp[len(stamp)-6:]
		sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", desc, ts)))
		code := suffix + hex.EncodeToString(sum[:])[:8]
		if !seen[code] {
			return code
		}
		ts++
	}
}
