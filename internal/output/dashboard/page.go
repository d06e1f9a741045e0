package dashboard

import "html/template"

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.TestName}} - gust dashboard</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"></script>
<style>
  :root { color-scheme: dark; }
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; background: #14161a; color: #e6e6e6; }
  header { padding: 14px 22px; background: #1d2026; border-bottom: 1px solid #2c313a; display: flex; align-items: baseline; gap: 14px; }
  header h1 { font-size: 18px; margin: 0; }
  header .run { color: #8b93a1; font-size: 12px; }
  header .status { margin-left: auto; font-size: 13px; }
  .status.running { color: #4cc38a; }
  .status.done { color: #8b93a1; }
  .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 12px; padding: 18px 22px; }
  .card { background: #1d2026; border: 1px solid #2c313a; border-radius: 8px; padding: 12px 16px; }
  .card .label { font-size: 11px; text-transform: uppercase; letter-spacing: .06em; color: #8b93a1; }
  .card .value { font-size: 24px; margin-top: 4px; font-variant-numeric: tabular-nums; }
  .charts { display: grid; grid-template-columns: 1fr 1fr; gap: 12px; padding: 0 22px 22px; }
  .chart { background: #1d2026; border: 1px solid #2c313a; border-radius: 8px; padding: 12px; height: 260px; }
  @media (max-width: 900px) { .charts { grid-template-columns: 1fr; } }
</style>
</head>
<body>
<header>
  <h1>{{.TestName}}</h1>
  <span class="run">run {{.RunID}}</span>
  <span class="status running" id="status">running</span>
</header>
<div class="cards">
  <div class="card"><div class="label">Requests</div><div class="value" id="requests">0</div></div>
  <div class="card"><div class="label">RPS</div><div class="value" id="rps">0</div></div>
  <div class="card"><div class="label">Error rate</div><div class="value" id="errors">0%</div></div>
  <div class="card"><div class="label">p95 latency</div><div class="value" id="p95">-</div></div>
  <div class="card"><div class="label">Active VUs</div><div class="value" id="vus">0</div></div>
  <div class="card"><div class="label">Phase</div><div class="value" id="phase">init</div></div>
</div>
<div class="charts">
  <div class="chart"><canvas id="rpsChart"></canvas></div>
  <div class="chart"><canvas id="latencyChart"></canvas></div>
  <div class="chart"><canvas id="vusChart"></canvas></div>
  <div class="chart"><canvas id="errorChart"></canvas></div>
</div>
<script>
(function () {
  "use strict";

  const MAX_POINTS = 600;
  const opts = {
    responsive: true,
    maintainAspectRatio: false,
    animation: false,
    scales: {
      x: { ticks: { color: "#8b93a1", maxTicksLimit: 8 }, grid: { color: "#2c313a" } },
      y: { ticks: { color: "#8b93a1" }, grid: { color: "#2c313a" }, beginAtZero: true }
    },
    plugins: { legend: { labels: { color: "#e6e6e6" } } }
  };

  function makeChart(id, datasets) {
    return new Chart(document.getElementById(id), {
      type: "line",
      data: { labels: [], datasets: datasets.map(function (d) {
        return { label: d.label, data: [], borderColor: d.color, backgroundColor: d.color,
                 borderWidth: 1.5, pointRadius: 0, tension: 0.2 };
      }) },
      options: opts
    });
  }

  const rpsChart = makeChart("rpsChart", [{ label: "RPS", color: "#4cc38a" }]);
  const latencyChart = makeChart("latencyChart", [
    { label: "p50 (ms)", color: "#5b8def" },
    { label: "p95 (ms)", color: "#e5a50a" },
    { label: "p99 (ms)", color: "#e0536d" }
  ]);
  const vusChart = makeChart("vusChart", [{ label: "Active VUs", color: "#b180d7" }]);
  const errorChart = makeChart("errorChart", [{ label: "Error rate (%)", color: "#e0536d" }]);

  function push(chart, label, values) {
    chart.data.labels.push(label);
    values.forEach(function (v, i) { chart.data.datasets[i].data.push(v); });
    if (chart.data.labels.length > MAX_POINTS) {
      chart.data.labels.shift();
      chart.data.datasets.forEach(function (d) { d.data.shift(); });
    }
    chart.update("none");
  }

  function ms(ns) { return Math.round(ns / 1e6 * 10) / 10; }

  function onBucket(b) {
    const t = new Date(b.timestamp).toLocaleTimeString();
    push(rpsChart, t, [Math.round(b.intervalRPS * 10) / 10]);
    push(latencyChart, t, [ms(b.latencyP50), ms(b.latencyP95), ms(b.latencyP99)]);
    push(vusChart, t, [b.activeVUs]);
    push(errorChart, t, [Math.round(b.intervalErrorRate * 1000) / 10]);

    document.getElementById("requests").textContent = b.totalRequests.toLocaleString();
    document.getElementById("rps").textContent = b.intervalRPS.toFixed(1);
    document.getElementById("errors").textContent = (b.intervalErrorRate * 100).toFixed(2) + "%";
    document.getElementById("p95").textContent = ms(b.latencyP95) + " ms";
    document.getElementById("vus").textContent = b.activeVUs;
    document.getElementById("phase").textContent = b.phase;
  }

  function onSnapshot(s) {
    document.getElementById("requests").textContent = s.totalRequests.toLocaleString();
    document.getElementById("rps").textContent = s.rps.toFixed(1);
    document.getElementById("errors").textContent = (s.errorRate * 100).toFixed(2) + "%";
    document.getElementById("p95").textContent = ms(s.latency.p95) + " ms";
    document.getElementById("vus").textContent = s.activeVUs;
    document.getElementById("phase").textContent = s.currentPhase;
  }

  function connect() {
    const proto = location.protocol === "https:" ? "wss:" : "ws:";
    const ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onmessage = function (msg) {
      const ev = JSON.parse(msg.data);
      if (ev.type === "bucket") onBucket(ev.bucket);
      else if (ev.type === "snapshot") onSnapshot(ev.snapshot);
      else if (ev.type === "summary") {
        const el = document.getElementById("status");
        el.textContent = ev.summary.passed ? "done" : "done (thresholds failed)";
        el.className = "status done";
      }
    };
    ws.onclose = function () { setTimeout(connect, 2000); };
  }
  connect();
})();
</script>
</body>
</html>
`
