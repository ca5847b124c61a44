package server

// pageTpl renders the whole page from a pageData. The script only reloads when
// the server reports a newer state version and submits the picker on change.
const pageTpl = `<!doctype html>
<html lang="en">
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width, initial-scale=1" />
<title>Archive of Artistic Voices</title>
<style>
body{font-family:system-ui,-apple-system,Segoe UI,Roboto;margin:0;background:#fff;color:#1f2937}
.banner{background:linear-gradient(90deg,#6d28d9,#4338ca);color:#fff;padding:1rem 1.5rem;text-align:center}
.banner h2{margin:0;font-size:1.25rem}
.banner p{margin:.25rem 0 0;font-size:.875rem;opacity:.9}
.tabs{display:flex;justify-content:center;gap:1.5rem;margin-top:1.5rem}
.tabs button{padding:.5rem 1rem;border:0;border-radius:9999px;font-weight:600;cursor:pointer;background:#e5e7eb;color:#1f2937}
.tabs button.active{background:#2563eb;color:#fff}
.archive{max-width:72rem;margin:0 auto;padding:1.5rem}
.archive h1{font-size:3rem;text-align:center;margin-bottom:2rem}
.lead{text-align:center;max-width:42rem;margin:0 auto 2.5rem;font-size:1.125rem;color:#4b5563}
.upload{text-align:center;margin-bottom:2.5rem}
.upload label{display:block;margin-bottom:.75rem;font-size:1.125rem;font-weight:500}
.picker{position:relative;display:inline-block}
.picker input{position:absolute;inset:0;width:100%;height:100%;opacity:0;cursor:pointer}
.picker span{display:inline-block;padding:.75rem 1.5rem;background:#2563eb;color:#fff;font-weight:600;border-radius:9999px}
.uploading{color:#2563eb;font-weight:500;margin-top:1rem}
.success{color:#16a34a;font-weight:500;margin-top:1rem}
.hint{font-size:.875rem;color:#6b7280;margin-top:.5rem}
.grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(18rem,1fr));gap:2rem}
.card{border:1px solid #e5e7eb;border-radius:1rem;background:#f9fafb;padding:1.5rem;box-shadow:0 4px 12px rgba(0,0,0,.08)}
.card audio{width:100%;margin-bottom:1rem}
.card strong{font-size:1.125rem}
.card small{display:block;color:#6b7280;margin-top:.25rem}
.info{max-width:56rem;margin:0 auto;padding:1.5rem;color:#374151}
</style>
<body data-version="{{.State.Version}}">
<div class="banner">
  <h2>Preserving Voices in the Age of AI</h2>
  <p>An archive of public thought on traditional art's legacy and future</p>
</div>

<form class="tabs" method="post" action="/tab">
  <button name="tab" value="archive"{{if eq .State.ActiveTab "archive"}} class="active"{{end}}>Archive</button>
  <button name="tab" value="info"{{if eq .State.ActiveTab "info"}} class="active"{{end}}>Info</button>
</form>

{{if eq .State.ActiveTab "archive"}}
<div class="archive">
  <h1>Archive of Artistic Voices</h1>
  <p class="lead">A digital archive preserving opinions on the decline of traditional art and the controversies around AI generative art.</p>

  <section class="upload">
    <form id="upload" method="post" action="/upload" enctype="multipart/form-data">
      <label for="file">Upload a Voice Recording</label>
      <div class="picker">
        <input id="file" type="file" name="file" accept="audio/*" multiple onchange="this.form.submit()" />
        <span>Choose File</span>
      </div>
    </form>
    {{if .State.IsUploading}}<p class="uploading">Uploading...</p>{{end}}
    {{if .State.JustSucceeded}}<p class="success">Upload successful!</p>{{end}}
    <p class="hint">Supported formats: {{join .SupportedFormats ", "}}.</p>
  </section>

  <section class="grid">
    {{range .State.Recordings}}
    <div class="card" id="rec-{{.ID}}">
      <audio controls preload="metadata">
        <source src="/media/{{.ID}}" type="{{.ContentType}}" />
      </audio>
      <strong>&#127908; Uploaded Recording</strong>
      <small>{{.Name}} &middot; {{bytes .Size}}</small>
    </div>
    {{end}}
  </section>
</div>
{{end}}

{{if eq .State.ActiveTab "info"}}
<div class="info">
  <h2>About This Project</h2>
  <p>This platform is designed to document and preserve public voices reflecting on the changing landscape of the art world.
  It explores the emotional, cultural, and professional impacts of artificial intelligence on traditional artistic values.</p>
  <p>Submissions are collected and displayed to provide a human archive of this transitional period, giving artists, collectors,
  critics, and everyday individuals a voice in the debate.</p>
  <p>If you have questions or would like to contribute in other ways, please reach out to the project team. This is a living,
  growing archive open to global participation.</p>
</div>
{{end}}

<script>
(function(){
  var rendered = document.body.dataset.version;
  if (!window.EventSource) return;
  var es = new EventSource("/events");
  es.addEventListener("state", function(ev){
    var st = JSON.parse(ev.data);
    if (String(st.version) !== rendered) { es.close(); location.reload(); }
  });
})();
</script>
</body>
</html>
`
