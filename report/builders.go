// Package report renders and stores the PDF paperwork that accompanies sync
// batches and stock transfers.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/nexopos/sucursalsync/internal/products"
	"github.com/nexopos/sucursalsync/internal/transfers"
)

// Generator builds the documents and hands the rendered PDFs to the store.
type Generator struct {
	logger *slog.Logger
	client *Client
	store  *Store
	tpl    *template.Template
}

// NewGenerator constructs a Generator.
func NewGenerator(logger *slog.Logger, client *Client, store *Store) (*Generator, error) {
	tpl, err := template.New("reports").Funcs(template.FuncMap{
		"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"qty":   func(v float64) string { return fmt.Sprintf("%.0f", v) },
	}).Parse(reportTemplates)
	if err != nil {
		return nil, fmt.Errorf("report: parse templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger, client: client, store: store, tpl: tpl}, nil
}

type syncReportData struct {
	Catalog     string
	GeneratedAt string
	Results     []products.Result
	Movements   []products.StockMovement
	Synced      int
	Failed      int
}

// SyncReport renders the stock movement report for a finished batch.
func (g *Generator) SyncReport(ctx context.Context, catalog string, results []products.Result, movements []products.StockMovement) (string, error) {
	data := syncReportData{
		Catalog:     catalog,
		GeneratedAt: time.Now().Format("2006-01-02 15:04"),
		Results:     results,
		Movements:   movements,
	}
	for _, res := range results {
		if res.Success {
			data.Synced++
		} else {
			data.Failed++
		}
	}
	return g.render(ctx, "sync_report", "sync", data)
}

type transferSheetData struct {
	Code        string
	GeneratedAt string
	Items       []transfers.Snapshot
	TotalQty    float64
	TotalValue  float64
}

// TransferSheet renders the verification sheet that travels with the goods.
// It carries signature lines for both ends of the transfer.
func (g *Generator) TransferSheet(ctx context.Context, code string, items []transfers.Snapshot) (string, error) {
	data := transferSheetData{
		Code:        code,
		GeneratedAt: time.Now().Format("2006-01-02 15:04"),
		Items:       items,
	}
	for _, it := range items {
		data.TotalQty += it.Quantity
		data.TotalValue += it.Quantity * it.StandardPrice
	}
	return g.render(ctx, "transfer_sheet", "transfer", data)
}

type transferOutcomeData struct {
	Outcome     transfers.Outcome
	GeneratedAt string
}

// TransferOutcome renders the administrative summary of a confirmation,
// including lines that were skipped or left partially transferred.
func (g *Generator) TransferOutcome(ctx context.Context, out transfers.Outcome) (string, error) {
	data := transferOutcomeData{
		Outcome:     out,
		GeneratedAt: time.Now().Format("2006-01-02 15:04"),
	}
	return g.render(ctx, "transfer_outcome", "outcome", data, Landscape())
}

func (g *Generator) render(ctx context.Context, tplName, prefix string, data any, opts ...RenderOption) (string, error) {
	var buf bytes.Buffer
	if err := g.tpl.ExecuteTemplate(&buf, tplName, data); err != nil {
		return "", fmt.Errorf("report: execute %s: %w", tplName, err)
	}
	pdf, err := g.client.RenderHTML(ctx, buf.String(), opts...)
	if err != nil {
		return "", err
	}
	name, err := g.store.Save(prefix, pdf)
	if err != nil {
		return "", err
	}
	g.logger.Info("report stored", slog.String("template", tplName), slog.String("file", name))
	return name, nil
}

const reportTemplates = `
{{define "head"}}
<style>
 body { font-family: sans-serif; font-size: 12px; }
 h1 { font-size: 18px; }
 table { width: 100%; border-collapse: collapse; margin-top: 8px; }
 th, td { border: 1px solid #444; padding: 4px 6px; text-align: left; }
 .meta { color: #555; }
 .sign { margin-top: 48px; display: flex; justify-content: space-between; }
 .sign div { width: 40%; border-top: 1px solid #000; text-align: center; padding-top: 4px; }
</style>
{{end}}

{{define "sync_report"}}
<html><head>{{template "head"}}</head><body>
<h1>Reporte de Sincronizacion</h1>
<p class="meta">Catalogo: {{.Catalog}} | Generado: {{.GeneratedAt}} | Exitosos: {{.Synced}} | Fallidos: {{.Failed}}</p>
<table>
<tr><th>Producto</th><th>Codigo</th><th>Accion</th><th>Detalle</th></tr>
{{range .Results}}<tr><td>{{.ProductName}}</td><td>{{.Barcode}}</td><td>{{.Action}}</td><td>{{.Message}}</td></tr>{{end}}
</table>
{{if .Movements}}
<h1>Movimientos de Stock</h1>
<table>
<tr><th>Producto</th><th>Codigo</th><th>Antes</th><th>Despues</th><th>Solicitado</th></tr>
{{range .Movements}}<tr><td>{{.Name}}</td><td>{{.Barcode}}</td><td>{{qty .Before}}</td><td>{{qty .After}}</td><td>{{qty .Requested}}</td></tr>{{end}}
</table>
{{end}}
</body></html>
{{end}}

{{define "transfer_sheet"}}
<html><head>{{template "head"}}</head><body>
<h1>Hoja de Transferencia</h1>
<p class="meta">Codigo: {{.Code}} | Generado: {{.GeneratedAt}}</p>
<table>
<tr><th>Producto</th><th>Codigo</th><th>Cantidad</th><th>Costo</th><th>Disponible</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td>{{.Barcode}}</td><td>{{qty .Quantity}}</td><td>{{money .StandardPrice}}</td><td>{{qty .Available}}</td></tr>{{end}}
<tr><th colspan="2">Totales</th><th>{{qty .TotalQty}}</th><th colspan="2">{{money .TotalValue}}</th></tr>
</table>
<div class="sign"><div>Entregado por</div><div>Recibido por</div></div>
</body></html>
{{end}}

{{define "transfer_outcome"}}
<html><head>{{template "head"}}</head><body>
<h1>Resultado de Transferencia</h1>
<p class="meta">Codigo: {{.Outcome.Code}} | Generado: {{.GeneratedAt}} | Procesados: {{.Outcome.ProcessedCount}} de {{.Outcome.Total}} | Omitidos: {{.Outcome.SkippedCount}}</p>
<table>
<tr><th>Producto</th><th>Codigo</th><th>Solicitado</th><th>Origen antes</th><th>Origen despues</th><th>Destino antes</th><th>Destino despues</th><th>Estado</th><th>Motivo</th></tr>
{{range .Outcome.Items}}<tr><td>{{.Name}}</td><td>{{.Barcode}}</td><td>{{qty .Requested}}</td><td>{{qty .SourceBefore}}</td><td>{{qty .SourceAfter}}</td><td>{{qty .DestBefore}}</td><td>{{qty .DestAfter}}</td><td>{{.Status}}</td><td>{{.Reason}}</td></tr>{{end}}
</table>
</body></html>
{{end}}
`
