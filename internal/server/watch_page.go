package server

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/validate"
)

var watchPageTemplate = template.Must(template.New("watch").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Chapters · {{.MediaID}}</title>
    <style nonce="{{.Nonce}}">
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #0a1628;
            color: #ffffff;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            min-height: 100vh;
        }
        .layout { display: grid; grid-template-columns: minmax(0, 2fr) minmax(0, 1fr); gap: 1.5rem; padding: 1.5rem; }
        .player { aspect-ratio: 16 / 9; background: #000; border-radius: 8px; overflow: hidden; }
        .timestamp { margin-top: 0.5rem; color: #94a3b8; font-variant-numeric: tabular-nums; }
        .chapters { max-height: 40vh; overflow-y: auto; margin-top: 1rem; }
        .chapter-item { display: flex; justify-content: space-between; padding: 0.5rem 0.75rem; border-radius: 6px; cursor: pointer; }
        .chapter-item.active { background: #00b67a; color: #0a1628; }
        .chapter-time { font-variant-numeric: tabular-nums; color: inherit; opacity: 0.8; }
        .frame { width: 100%; aspect-ratio: 4 / 3; border: 0; border-radius: 8px; background: #111827; }
        .frame-address { font-size: 0.75rem; color: #64748b; word-break: break-all; }
        .grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(140px, 1fr)); gap: 1rem; }
        .grid-item { border: 2px solid transparent; border-radius: 8px; transition: transform 0.5s; }
        .grid-item.selected { border-color: #00b67a; }
        .grid-item.emphasized { transform: scale(1.1); }
        .sb-card { cursor: pointer; padding: 0.5rem; }
        .sb-card img { width: 100%; border-radius: 4px; }
        .hidden { display: none; }
        .cart-item { display: flex; gap: 0.75rem; margin-bottom: 0.75rem; }
        .cart-item img { width: 64px; border-radius: 4px; }
        button, input, textarea { font: inherit; }
        button:disabled { opacity: 0.5; }
    </style>
</head>
<body>
<div class="layout">
    <section>
        <div class="player"><div id="player"></div></div>
        <p class="timestamp" id="current-timestamp">0:00</p>
        <div class="chapters" id="chapters-list">
            {{range .Chapters}}
            <div class="chapter-item" id="chapter-{{.Index}}" data-index="{{.Index}}" data-start="{{.StartTime}}">
                <span class="chapter-title">{{.Title}}</span>
                <span class="chapter-time">{{.DisplayTime}}</span>
            </div>
            {{end}}
        </div>
    </section>
    <aside>
        {{if .FrameVariant}}
        <iframe class="frame" id="chapter-frame" title="Chapter frame"></iframe>
        <p class="frame-address" id="frame-address"></p>
        {{end}}
        <div id="step-1">
            <p id="selection-count">0 items selected</p>
            <div class="grid">
                {{range .Items}}
                <div class="grid-item" id="{{.ID}}">
                    <div class="sb-card" data-id="{{.ID}}" data-desc="{{.Description}}">
                        {{if .Image}}<img src="{{.Image}}" alt="{{.Description}}">{{end}}
                        <p>{{.Description}}</p>
                    </div>
                </div>
                {{end}}
            </div>
            <button id="add-to-cart-btn" disabled>Checkout <span id="cart-count"></span></button>
        </div>
        <div id="step-2" class="hidden">
            <div id="cart-list"></div>
            <form id="checkout-form">
                <input name="name" placeholder="Name" maxlength="{{.NameMax}}" required>
                <textarea name="address" placeholder="Address" maxlength="{{.AddressMax}}" required></textarea>
                <button type="submit">Submit order</button>
                <button type="button" id="back-btn">Back</button>
            </form>
        </div>
    </aside>
</div>
<script nonce="{{.Nonce}}">
(function () {
    var mediaId = {{.MediaID}};
    var player, lastSnapshot = null;

    function api(method, path, body) {
        return fetch(path, {
            method: method,
            credentials: 'same-origin',
            headers: body ? { 'Content-Type': 'application/json' } : {},
            body: body ? JSON.stringify(body) : undefined
        }).then(function (res) {
            if (res.status === 204) return null;
            return res.json().then(function (data) {
                if (!res.ok) throw new Error(data.error || res.statusText);
                return data;
            });
        });
    }

    function render(s) {
        document.getElementById('current-timestamp').textContent = s.displayTime;
        document.querySelectorAll('.chapter-item').forEach(function (el) {
            el.classList.toggle('active', Number(el.dataset.index) === s.activeIndex);
        });
        if (!lastSnapshot || lastSnapshot.listScrollIndex !== s.listScrollIndex) {
            var row = document.getElementById('chapter-' + s.listScrollIndex);
            if (row) row.scrollIntoView({ behavior: 'smooth', block: 'nearest' });
        }
        if (s.scrollTarget && (!lastSnapshot || lastSnapshot.scrollCount !== s.scrollCount)) {
            var region = document.getElementById(s.scrollTarget);
            if (region) region.scrollIntoView({ behavior: 'smooth', block: 'center' });
        }
        document.querySelectorAll('.grid-item').forEach(function (el) {
            el.classList.toggle('emphasized', s.emphasized.indexOf(el.id) !== -1);
        });
        var frame = document.getElementById('chapter-frame');
        if (frame && s.frameAddress && frame.src !== s.frameAddress) {
            frame.src = s.frameAddress;
            document.getElementById('frame-address').textContent = s.displayAddress;
        }
        lastSnapshot = s;
    }

    function renderSummary(summary) {
        document.getElementById('selection-count').textContent = summary.label;
        document.getElementById('add-to-cart-btn').disabled = summary.buttonDisabled;
        document.getElementById('cart-count').textContent = summary.buttonCount;
        document.getElementById('step-1').classList.toggle('hidden', summary.step !== 1);
        document.getElementById('step-2').classList.toggle('hidden', summary.step !== 2);
    }

    function renderCart(c) {
        renderSummary(c.summary);
        var list = document.getElementById('cart-list');
        list.textContent = '';
        c.entries.forEach(function (it) {
            var row = document.createElement('div');
            row.className = 'cart-item';
            if (it.image) {
                var img = document.createElement('img');
                img.src = it.image;
                img.alt = it.description;
                row.appendChild(img);
            }
            var info = document.createElement('div');
            var h = document.createElement('h4');
            h.textContent = it.description;
            var p = document.createElement('p');
            p.textContent = 'ID: ' + it.id;
            info.appendChild(h);
            info.appendChild(p);
            row.appendChild(info);
            list.appendChild(row);
        });
    }

    function report() {
        if (!player || !player.getCurrentTime) return;
        api('POST', '/api/session/position', {
            time: player.getCurrentTime(),
            playing: player.getPlayerState() === 1
        }).catch(function () {});
    }

    function start() {
        var events = new EventSource('/api/session/events');
        events.addEventListener('view', function (e) { render(JSON.parse(e.data)); });
        events.addEventListener('closed', function () { events.close(); });

        var tag = document.createElement('script');
        tag.src = 'https://www.youtube.com/iframe_api';
        document.head.appendChild(tag);
    }

    window.onYouTubeIframeAPIReady = function () {
        player = new YT.Player('player', {
            height: '100%',
            width: '100%',
            videoId: mediaId,
            playerVars: { playsinline: 1, modestbranding: 1 },
            events: {
                onReady: function () {
                    api('POST', '/api/session/ready', { duration: player.getDuration() || 0 }).then(render);
                    setInterval(report, 1000);
                },
                onStateChange: function (e) {
                    api('POST', '/api/session/state', { state: e.data }).catch(function () {});
                    report();
                }
            }
        });
    };

    document.getElementById('chapters-list').addEventListener('click', function (e) {
        var row = e.target.closest('.chapter-item');
        if (!row || !player) return;
        api('POST', '/api/session/seek', { index: Number(row.dataset.index) }).then(function (snap) {
            player.seekTo(row.dataset.start, true);
            player.playVideo();
            render(snap);
        });
    });

    document.querySelectorAll('.sb-card').forEach(function (card) {
        card.addEventListener('click', function () {
            api('POST', '/api/session/cart/items/' + encodeURIComponent(card.dataset.id)).then(function (res) {
                card.parentElement.classList.toggle('selected', res.selected);
                renderSummary(res.summary);
            });
        });
    });

    document.getElementById('add-to-cart-btn').addEventListener('click', function () {
        api('POST', '/api/session/cart/step', { step: 2 }).then(renderCart);
    });
    document.getElementById('back-btn').addEventListener('click', function () {
        api('POST', '/api/session/cart/step', { step: 1 }).then(renderCart);
    });

    document.getElementById('checkout-form').addEventListener('submit', function (e) {
        e.preventDefault();
        var form = e.target;
        var data = new FormData(form);
        api('POST', '/api/session/checkout', { name: data.get('name'), address: data.get('address') }).then(function (order) {
            alert('Order submitted for ' + order.name + '.');
            document.querySelectorAll('.grid-item.selected').forEach(function (el) { el.classList.remove('selected'); });
            form.reset();
            return api('GET', '/api/session/cart').then(renderCart);
        }).catch(function (err) { alert(err.message); });
    });

    window.addEventListener('pagehide', function () {
        fetch('/api/session', { method: 'DELETE', credentials: 'same-origin', keepalive: true });
    });

    api('POST', '/api/sessions').then(start);
})();
</script>
</body>
</html>`))

type watchPageData struct {
	Nonce        string
	MediaID      string
	FrameVariant bool
	Chapters     []chapterEntry
	Items        []itemResponse
	NameMax      int
	AddressMax   int
}

func (s *Server) handleWatchPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := watchPageTemplate.Execute(w, watchPageData{
		Nonce:        nonceFrom(r.Context()),
		MediaID:      s.page.MediaID,
		FrameVariant: s.page.Variant == chapter.VariantFrame,
		Chapters:     chapterEntries(s.page.Chapters),
		Items:        s.itemResponses(r.Context(), s.page.Items),
		NameMax:      validate.MaxOrderNameLength,
		AddressMax:   validate.MaxOrderAddressLength,
	}); err != nil {
		slog.Error("watch page: render failed", "error", err)
	}
}
