package server

import (
	"html/template"

	"partner_bitrix/internal/stats"
)

type cardRecord struct {
	ID         string
	Title      string
	Amount     string
	StageName  string
	StageColor string
	URL        string
}

type cardData struct {
	EntityName  string
	EntityLabel string
	Deals       []cardRecord
	DealStats   stats.DealStats
	Leads       []cardRecord
	LeadStats   stats.DealStats
}

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Сделки партнера</title>
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f8f9fa; padding: 20px; }
.header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 24px; border-radius: 12px; margin-bottom: 24px; }
.header h1 { font-size: 24px; font-weight: 600; margin-bottom: 8px; }
.header p { opacity: 0.9; font-size: 14px; }
.section-title { font-size: 18px; font-weight: 600; color: #2c3e50; margin: 24px 0 12px; }
.summary { background: white; padding: 16px 20px; border-radius: 8px; margin-bottom: 16px; display: flex; gap: 24px; box-shadow: 0 2px 8px rgba(0,0,0,0.05); }
.summary div { font-size: 14px; color: #7f8c8d; }
.summary b { display: block; font-size: 20px; color: #2c3e50; }
.card-link { text-decoration: none; color: inherit; display: block; }
.card { background: white; padding: 20px; border-radius: 12px; margin-bottom: 12px; box-shadow: 0 2px 8px rgba(0,0,0,0.05); }
.card-head { display: flex; justify-content: space-between; margin-bottom: 12px; }
.card-title { font-size: 16px; font-weight: 600; color: #2c3e50; }
.card-amount { font-size: 18px; font-weight: 700; color: #27ae60; white-space: nowrap; }
.card-meta { display: flex; gap: 12px; align-items: center; }
.card-id { font-size: 12px; color: #95a5a6; }
.stage { font-size: 12px; padding: 4px 12px; border-radius: 12px; font-weight: 500; }
.empty { background: white; padding: 48px 24px; border-radius: 12px; text-align: center; color: #7f8c8d; }
</style>
</head>
<body>
<div class="header">
  <h1>👋 {{.EntityName}}</h1>
  <p>Сделки и лиды в качестве партнера {{.EntityLabel}}</p>
</div>

<div class="section-title">Сделки</div>
<div class="summary">
  <div>Всего<b>{{.DealStats.Count}}</b></div>
  <div>В работе<b>{{.DealStats.InProgress}}</b></div>
  <div>Успешно<b>{{.DealStats.Success}}</b></div>
  <div>Провалено<b>{{.DealStats.Failed}}</b></div>
  <div>Сумма<b>{{printf "%.2f" .DealStats.TotalAmount}}</b></div>
</div>
{{if .Deals}}{{range .Deals}}
<a href="{{.URL}}" class="card-link" target="_blank">
  <div class="card">
    <div class="card-head">
      <div class="card-title">{{.Title}}</div>
      <div class="card-amount">{{.Amount}}</div>
    </div>
    <div class="card-meta">
      <span class="card-id">ID: {{.ID}}</span>
      <span class="stage" style="background-color: {{.StageColor}}20; color: {{.StageColor}};">{{.StageName}}</span>
    </div>
  </div>
</a>
{{end}}{{else}}
<div class="empty">
  <p>📋 Сделок не найдено</p>
  <p>У этой сущности пока нет сделок в качестве партнера</p>
</div>
{{end}}

<div class="section-title">Лиды</div>
<div class="summary">
  <div>Всего<b>{{.LeadStats.Count}}</b></div>
  <div>В работе<b>{{.LeadStats.InProgress}}</b></div>
  <div>Успешно<b>{{.LeadStats.Success}}</b></div>
  <div>Провалено<b>{{.LeadStats.Failed}}</b></div>
  <div>Сумма<b>{{printf "%.2f" .LeadStats.TotalAmount}}</b></div>
</div>
{{if .Leads}}{{range .Leads}}
<div class="card">
  <div class="card-head">
    <div class="card-title">{{.Title}}</div>
    <div class="card-amount">{{.Amount}}</div>
  </div>
  <div class="card-meta">
    <span class="card-id">ID: {{.ID}}</span>
    <span class="stage" style="background-color: {{.StageColor}}20; color: {{.StageColor}};">{{.StageName}}</span>
  </div>
</div>
{{end}}{{else}}
<div class="empty"><p>Лидов не найдено</p></div>
{{end}}
</body>
</html>
`))

var rootTemplate = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html lang="ru">
<head><meta charset="UTF-8"><title>Bitrix24 Webhook Handler</title></head>
<body>
<h1>✅ Bitrix24 Webhook Handler</h1>
<p>Сервис работает корректно</p>
<p>Используйте POST /webhook для обработки webhook от Битрикс24</p>
</body>
</html>
`))

// stageColor picks the accent for a stage chip: green for won, red for
// lost, blue otherwise.
func stageColor(stageID string) string {
	switch stats.Classify(stageID) {
	case stats.BucketSuccess:
		return "#2ecc71"
	case stats.BucketFailed:
		return "#e74c3c"
	}
	return "#3498db"
}
