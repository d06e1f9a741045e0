package report

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"></script>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f5f6f8; color: #22262b; }
  .wrap { max-width: 1100px; margin: 0 auto; padding: 24px; }
  header { display: flex; align-items: center; gap: 16px; padding-bottom: 18px; border-bottom: 2px solid #e1e4e8; }
  header img { height: 48px; }
  header h1 { font-size: 24px; margin: 0; }
  header .meta { margin-left: auto; text-align: right; color: #6a737d; font-size: 13px; }
  .badge { display: inline-block; padding: 3px 12px; border-radius: 12px; font-size: 13px; font-weight: 600; }
  .badge.pass { background: #dcf5e7; color: #1a7f4b; }
  .badge.fail { background: #fde8e8; color: #c0392b; }
  .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr)); gap: 14px; margin: 22px 0; }
  .card { background: #fff; border: 1px solid #e1e4e8; border-radius: 8px; padding: 14px 18px; }
  .card .label { font-size: 11px; text-transform: uppercase; letter-spacing: .05em; color: #6a737d; }
  .card .value { font-size: 26px; margin-top: 6px; font-variant-numeric: tabular-nums; }
  h2 { font-size: 17px; margin: 28px 0 12px; }
  table { width: 100%; border-collapse: collapse; background: #fff; border: 1px solid #e1e4e8; border-radius: 8px; overflow: hidden; }
  th, td { text-align: left; padding: 9px 14px; border-bottom: 1px solid #eef0f2; font-size: 14px; }
  th { background: #fafbfc; color: #6a737d; font-weight: 600; font-size: 12px; text-transform: uppercase; letter-spacing: .04em; }
  tr:last-child td { border-bottom: none; }
  td.num { font-variant-numeric: tabular-nums; }
  .ok { color: #1a7f4b; }
  .bad { color: #c0392b; }
  .chart { background: #fff; border: 1px solid #e1e4e8; border-radius: 8px; padding: 14px; height: 280px; margin-bottom: 14px; }
  footer { margin-top: 28px; padding-top: 14px; border-top: 1px solid #e1e4e8; color: #6a737d; font-size: 12px; }
</style>
</head>
<body>
<div class="wrap">
<header>
  {{if .Logo}}<img src="{{.Logo}}" alt="logo">{{end}}
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{if .Passed}}<span class="badge pass">PASSED</span>{{else}}<span class="badge fail">FAILED</span>{{end}}<br>
    {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; {{formatDuration .Duration}}
  </div>
</header>

{{if .Description}}<p>{{.Description}}</p>{{end}}

<div class="cards">
  <div class="card"><div class="label">Requests</div><div class="value">{{formatNumber .Snapshot.TotalRequests}}</div></div>
  <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .Snapshot.RPS}}/s</div></div>
  <div class="card"><div class="label">Error rate</div><div class="value">{{percent .Snapshot.ErrorRate}}</div></div>
  <div class="card"><div class="label">p95 latency</div><div class="value">{{formatDuration .Snapshot.Latency.P95}}</div></div>
  <div class="card"><div class="label">p99 latency</div><div class="value">{{formatDuration .Snapshot.Latency.P99}}</div></div>
  <div class="card"><div class="label">Data received</div><div class="value">{{formatBytes .Snapshot.TotalBytes}}</div></div>
</div>

<h2>Throughput &amp; errors</h2>
<div class="chart"><canvas id="rpsChart"></canvas></div>

<h2>Latency percentiles</h2>
<div class="chart"><canvas id="latencyChart"></canvas></div>

<h2>Virtual users</h2>
<div class="chart"><canvas id="vusChart"></canvas></div>

<h2>Latency distribution</h2>
<table>
  <tr><th>min</th><th>avg</th><th>med</th><th>p90</th><th>p95</th><th>p99</th><th>max</th></tr>
  <tr>
    <td class="num">{{formatDuration .Snapshot.Latency.Min}}</td>
    <td class="num">{{formatDuration .Snapshot.Latency.Mean}}</td>
    <td class="num">{{formatDuration .Snapshot.Latency.P50}}</td>
    <td class="num">{{formatDuration .Snapshot.Latency.P90}}</td>
    <td class="num">{{formatDuration .Snapshot.Latency.P95}}</td>
    <td class="num">{{formatDuration .Snapshot.Latency.P99}}</td>
    <td class="num">{{formatDuration .Snapshot.Latency.Max}}</td>
  </tr>
</table>

{{if .RequestRows}}
<h2>Requests</h2>
<table>
  <tr><th>name</th><th>count</th><th>avg</th><th>p95</th><th>p99</th><th>max</th></tr>
  {{range .RequestRows}}
  <tr>
    <td>{{.Name}}</td>
    <td class="num">{{formatNumber .Stats.Count}}</td>
    <td class="num">{{formatDuration .Stats.Mean}}</td>
    <td class="num">{{formatDuration .Stats.P95}}</td>
    <td class="num">{{formatDuration .Stats.P99}}</td>
    <td class="num">{{formatDuration .Stats.Max}}</td>
  </tr>
  {{end}}
</table>
{{end}}

{{if .Checks}}
<h2>Checks</h2>
<table>
  <tr><th></th><th>check</th><th>passed</th><th>failed</th></tr>
  {{range .Checks}}
  <tr>
    <td>{{if gt .Failed 0}}<span class="bad">&#10007;</span>{{else}}<span class="ok">&#10003;</span>{{end}}</td>
    <td>{{.Name}}</td>
    <td class="num">{{formatNumber .Passed}}</td>
    <td class="num">{{formatNumber .Failed}}</td>
  </tr>
  {{end}}
</table>
{{end}}

{{if .Thresholds}}
<h2>Thresholds</h2>
<table>
  <tr><th></th><th>metric</th><th>threshold</th><th>actual</th></tr>
  {{range .Thresholds}}
  <tr>
    <td>{{if .Passed}}<span class="ok">&#10003;</span>{{else}}<span class="bad">&#10007;</span>{{end}}</td>
    <td>{{.Metric}}</td>
    <td>{{.Expression}}</td>
    <td class="num">{{.ValueText}}</td>
  </tr>
  {{end}}
</table>
{{end}}

<footer>Generated by gust on {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</footer>
</div>

<script>
const series = {{.SeriesJSON}};
const labels = series.map(p => p.timestamp);

const base = {
  type: "line",
  options: {
    responsive: true,
    maintainAspectRatio: false,
    animation: false,
    interaction: { mode: "index", intersect: false },
    scales: { y: { beginAtZero: true } },
    elements: { point: { radius: 0 }, line: { borderWidth: 1.5, tension: 0.2 } }
  }
};

new Chart(document.getElementById("rpsChart"), { ...base, data: { labels, datasets: [
  { label: "RPS", data: series.map(p => p.rps), borderColor: "#2ea05f", backgroundColor: "#2ea05f" },
  { label: "Error rate (%)", data: series.map(p => p.errorRate * 100), borderColor: "#c0392b", backgroundColor: "#c0392b" }
]}});

new Chart(document.getElementById("latencyChart"), { ...base, data: { labels, datasets: [
  { label: "p50 (ms)", data: series.map(p => p.p50), borderColor: "#3b6fd4", backgroundColor: "#3b6fd4" },
  { label: "p95 (ms)", data: series.map(p => p.p95), borderColor: "#d4a12c", backgroundColor: "#d4a12c" },
  { label: "p99 (ms)", data: series.map(p => p.p99), borderColor: "#c0392b", backgroundColor: "#c0392b" }
]}});

new Chart(document.getElementById("vusChart"), { ...base, data: { labels, datasets: [
  { label: "Active VUs", data: series.map(p => p.activeVUs), borderColor: "#8455c9", backgroundColor: "#8455c9" }
]}});
</script>
</body>
</html>
`
