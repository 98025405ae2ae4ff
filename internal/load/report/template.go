package report

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}} - askload report</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f8fafc; color: #1e293b; }
  .container { max-width: 1100px; margin: 0 auto; padding: 2rem; }
  header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 1.5rem; }
  h1 { margin: 0; font-size: 1.6rem; }
  h2 { font-size: 1.1rem; margin: 0 0 1rem; }
  .meta { color: #64748b; font-size: 0.85rem; }
  .badge { padding: 0.35rem 0.9rem; border-radius: 999px; font-weight: 600; color: #fff; }
  .badge.pass { background: #22c55e; }
  .badge.fail { background: #ef4444; }
  .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
  .card, section { background: #fff; border: 1px solid #e2e8f0; border-radius: 8px; padding: 1rem; }
  section { margin-bottom: 1.5rem; }
  .label { color: #64748b; font-size: 0.75rem; text-transform: uppercase; }
  .value { font-size: 1.4rem; font-weight: 600; }
  table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
  th, td { text-align: left; padding: 0.45rem; border-bottom: 1px solid #e2e8f0; }
  .pass { color: #16a34a; }
  .fail { color: #dc2626; }
  .charts { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
  .error { background: #fef2f2; color: #b91c1c; padding: 0.75rem; border-radius: 6px; }
</style>
</head>
<body>
<div class="container">
  <header>
    <div>
      <h1>{{.Name}}</h1>
      <div class="meta">run {{.RunID}} &middot; script {{.Script}} &middot; {{.StartTime.Format "2006-01-02 15:04:05 MST"}} &middot; {{.Duration}}</div>
      {{if .Description}}<div class="meta">{{.Description}}</div>{{end}}
    </div>
    {{if .Passed}}<span class="badge pass">PASSED</span>{{else}}<span class="badge fail">FAILED</span>{{end}}
  </header>

  {{if .Error}}<section class="error">{{.Error}}</section>{{end}}

  {{with .Metrics}}
  <div class="grid">
    <div class="card"><div class="label">Requests</div><div class="value">{{number .TotalRequests}}</div></div>
    <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .RPS}} req/s</div></div>
    <div class="card"><div class="label">Failed</div><div class="value">{{percent .ErrorRate}}</div></div>
    <div class="card"><div class="label">Checks</div><div class="value">{{percent .Checks.Rate}}</div></div>
    <div class="card"><div class="label">Iterations</div><div class="value">{{number .Iterations}}</div></div>
    <div class="card"><div class="label">P95</div><div class="value">{{latency .Latency.P95}}</div></div>
    <div class="card"><div class="label">Received</div><div class="value">{{bytes .TotalBytes}}</div></div>
  </div>

  <section>
    <h2>Latency</h2>
    <table>
      <tr><th>Min</th><th>Mean</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>Max</th></tr>
      <tr><td>{{latency .Latency.Min}}</td><td>{{latency .Latency.Mean}}</td><td>{{latency .Latency.P50}}</td><td>{{latency .Latency.P90}}</td><td>{{latency .Latency.P95}}</td><td>{{latency .Latency.P99}}</td><td>{{latency .Latency.Max}}</td></tr>
    </table>
  </section>

  {{if .Checks.Checks}}
  <section>
    <h2>Checks</h2>
    <table>
      <tr><th></th><th>Check</th><th>Pass rate</th><th>Passes</th><th>Fails</th></tr>
      {{range .Checks.Checks}}
      <tr>
        <td class="{{if .Fails}}fail{{else}}pass{{end}}">{{if .Fails}}&#10007;{{else}}&#10003;{{end}}</td>
        <td>{{.Name}}</td><td>{{percent .PassRate}}</td><td>{{number .Passes}}</td><td>{{number .Fails}}</td>
      </tr>
      {{end}}
    </table>
  </section>
  {{end}}
  {{end}}

  {{if .RequestNames}}
  <section>
    <h2>Requests</h2>
    <table>
      <tr><th>Name</th><th>Count</th><th>Mean</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th></tr>
      {{range $name := .RequestNames}}{{with index $.RequestStats $name}}
      <tr><td>{{$name}}</td><td>{{number .Count}}</td><td>{{latency .Mean}}</td><td>{{latency .P50}}</td><td>{{latency .P95}}</td><td>{{latency .P99}}</td><td>{{latency .Max}}</td></tr>
      {{end}}{{end}}
    </table>
  </section>
  {{end}}

  {{if .ScenarioNames}}
  <section>
    <h2>Scenarios</h2>
    <table>
      <tr><th>Scenario</th><th>Executor</th><th>Duration</th><th>Iterations</th><th>Dropped</th><th>Error</th></tr>
      {{range $name := .ScenarioNames}}{{with index $.Scenarios $name}}
      <tr>
        <td>{{$name}}</td><td>{{.Executor}}</td><td>{{.Duration}}</td>
        <td>{{if .Stats}}{{number .Stats.Iterations}}{{end}}</td>
        <td>{{if .Stats}}{{number .Stats.DroppedIterations}}{{end}}</td>
        <td class="fail">{{.Error}}</td>
      </tr>
      {{end}}{{end}}
    </table>
  </section>
  {{end}}

  {{if .Thresholds}}
  <section>
    <h2>Thresholds</h2>
    <table>
      <tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th><th></th></tr>
      {{range .Thresholds}}
      <tr>
        <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
        <td>{{.Metric}}</td><td>{{.Expression}}</td><td>{{.Value}}</td><td>{{.Message}}</td>
      </tr>
      {{end}}
    </table>
  </section>
  {{end}}

  <section>
    <h2>Over time</h2>
    <div class="charts">
      <canvas id="rps"></canvas>
      <canvas id="latency"></canvas>
    </div>
  </section>
</div>
<script>
  const series = {{.SeriesJSON}};
  if (window.Chart && series.length) {
    const labels = series.map(p => p.t + 's');
    new Chart(document.getElementById('rps'), {
      type: 'line',
      data: { labels, datasets: [
        { label: 'req/s', data: series.map(p => p.rps), borderColor: '#3b82f6' },
        { label: 'VUs', data: series.map(p => p.vus), borderColor: '#8b5cf6' },
      ] },
    });
    new Chart(document.getElementById('latency'), {
      type: 'line',
      data: { labels, datasets: [
        { label: 'p50 ms', data: series.map(p => p.p50), borderColor: '#22c55e' },
        { label: 'p95 ms', data: series.map(p => p.p95), borderColor: '#f59e0b' },
      ] },
    });
  }
</script>
</body>
</html>
`
