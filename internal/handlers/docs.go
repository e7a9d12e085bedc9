package handlers

import (
	"html/template"
	"net/http"
)

const apiDocsHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Armageddon Chess API Documentation</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            background: linear-gradient(135deg, #2c3e50 0%, #4a235a 100%);
            min-height: 100vh;
            padding: 20px;
        }

        .container {
            max-width: 1100px;
            margin: 0 auto;
            background: white;
            border-radius: 12px;
            box-shadow: 0 20px 60px rgba(0, 0, 0, 0.3);
            overflow: hidden;
        }

        header {
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: white;
            padding: 40px;
            text-align: center;
        }

        h1 {
            font-size: 40px;
            margin-bottom: 10px;
        }

        .subtitle {
            color: rgba(255, 255, 255, 0.8);
            font-size: 18px;
        }

        main {
            padding: 40px;
        }

        section {
            margin-bottom: 50px;
        }

        h2 {
            color: #1a1a2e;
            font-size: 30px;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 3px solid #4a235a;
        }

        .endpoint {
            background: #f8f9fa;
            border-left: 4px solid #4a235a;
            padding: 20px;
            margin: 20px 0;
            border-radius: 6px;
        }

        .method {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 4px;
            font-weight: bold;
            font-size: 14px;
            margin-right: 10px;
        }

        .method.get { background: #28a745; color: white; }
        .method.post { background: #007bff; color: white; }
        .method.ws { background: #6f42c1; color: white; }

        .path {
            font-family: 'Courier New', monospace;
            font-size: 16px;
            color: #495057;
        }

        .description {
            margin: 15px 0;
            color: #666;
        }

        pre {
            background: #2d2d2d;
            color: #f8f8f2;
            padding: 20px;
            border-radius: 6px;
            overflow-x: auto;
            margin: 15px 0;
            font-size: 14px;
        }

        code {
            font-family: 'Courier New', monospace;
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>♔ Armageddon Chess API ♚</h1>
            <p class="subtitle">Real-time chess with bid-for-color: the lower bid picks a side and plays with that much clock</p>
        </header>

        <main>
            <section id="overview">
                <h2>Overview</h2>
                <p>Rooms move through <code>LOBBY → BIDDING → COLOR_PICK → PLAYING → FINISHED</code>.
                Both players blind-bid clock time; the lower bid wins the right to choose a color
                and starts with the bid on the clock, while the opponent keeps the full main time
                and draw odds. All timestamps are Unix milliseconds. Successful responses carry
                <code>ok: true</code>; failures carry <code>error: &lt;code&gt;</code>.</p>
            </section>

            <section id="rooms">
                <h2>Rooms</h2>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms</span>
                    <p class="description">Create a room. All fields optional.</p>
                    <pre>{
  "roomId": "custom-id",
  "maxPlayers": 2,
  "mainTimeMs": 300000,
  "bidDurationMs": 60000,
  "choiceDurationMs": 30000,
  "private": false
}</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/join-next</span>
                    <p class="description">Join the oldest public lobby with a free seat. <code>mainTimeMs</code> narrows to one time control.</p>
                    <pre>{ "playerId": "p1", "name": "Alice", "mainTimeMs": 300000 }</pre>
                </div>

                <div class="endpoint">
                    <span class="method get">GET</span>
                    <span class="path">/rooms/available-count</span>
                    <p class="description">Number of public lobbies with a free seat.</p>
                </div>

                <div class="endpoint">
                    <span class="method get">GET</span>
                    <span class="path">/rooms/{id}</span>
                    <p class="description">Full room state. Lapsed deadlines (bid resolution, color-pick rotation, disconnect forfeits) are applied before the snapshot is returned.</p>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/join</span>
                    <p class="description">Take a seat. Idempotent for a player already seated.</p>
                    <pre>{ "playerId": "p1", "name": "Alice" }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/start-bidding</span>
                    <p class="description">Press start. Bidding opens when both players have pressed within 60 seconds.</p>
                    <pre>{ "playerId": "p1" }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/submit-bid</span>
                    <p class="description">Sealed clock bid in milliseconds, 0 ≤ amount ≤ mainTimeMs. One bid per player per round; ties restart bidding.</p>
                    <pre>{ "playerId": "p1", "amount": 30000 }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/choose-color</span>
                    <p class="description">Bid winner picks a side; the choice rotates on timeout, and a fourth lapse finalizes as a draw.</p>
                    <pre>{ "playerId": "p1", "color": "white" }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/move</span>
                    <p class="description">UCI move: from-square, to-square, optional promotion letter.</p>
                    <pre>{ "playerId": "p1", "move": "e2e4" }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/time-forfeit</span>
                    <p class="description">Claim the opponent's flag (or concede your own lapsed clock). Rejected with <code>time_not_expired</code> while time remains.</p>
                    <pre>{ "playerId": "p1" }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/rematch</span>
                    <p class="description">Vote on a rematch while the window is open. Votes are final; unanimous yes returns the room to LOBBY.</p>
                    <pre>{ "playerId": "p1", "agree": true }</pre>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/leave</span>
                    <p class="description">Give up the seat (LOBBY) or abandon the game.</p>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/rooms/{id}/heartbeat</span>
                    <p class="description">Liveness ping; keeps the disconnect detector quiet.</p>
                </div>

                <div class="endpoint">
                    <span class="method ws">WS</span>
                    <span class="path">/rooms/{id}/ws?playerId=p1</span>
                    <p class="description">Live room stream: an <code>init</code> frame on attach, an <code>update</code> frame per commit.</p>
                </div>
            </section>

            <section id="queue">
                <h2>Matchmaking queue</h2>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/queue/join</span>
                    <p class="description">Wait for an opponent at one time control. Two waiters are paired into a fresh room immediately.</p>
                    <pre>{ "playerId": "p1", "name": "Alice", "mainTimeMs": 600000 }</pre>
                    <p class="description">Response: <code>{ok, roomId, room}</code> when paired, else <code>{ok, queued, queuePosition}</code>.</p>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/queue/joinAll</span>
                    <p class="description">Wait in every time-control bucket at once.</p>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/queue/leave</span>
                    <p class="description">Leave every queue.</p>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/queue/checkMatch</span>
                    <p class="description">Poll for a seat: <code>{matched, roomId?, room?, inQueue}</code>.</p>
                </div>

                <div class="endpoint">
                    <span class="method post">POST</span>
                    <span class="path">/queue/heartbeat</span>
                    <p class="description">Keep the queue entry alive; silent entries are swept after 5 minutes.</p>
                </div>

                <div class="endpoint">
                    <span class="method get">GET</span>
                    <span class="path">/queue/status</span>
                    <p class="description">Per-time-control wait estimates.</p>
                    <pre>{
  "ok": true,
  "estimates": {
    "300000": { "queueLength": 1, "activeGames": 3, "estimate": "match_now" },
    "600000": { "queueLength": 0, "activeGames": 2, "estimate": "wait", "estimatedWaitMs": 184000 }
  }
}</pre>
                </div>

                <div class="endpoint">
                    <span class="method ws">WS</span>
                    <span class="path">/queue/ws</span>
                    <p class="description">Queue-size stream: a <code>queue_update</code> frame after every queue mutation.</p>
                </div>
            </section>
        </main>
    </div>
</body>
</html>`

func ServeAPIDocs(w http.ResponseWriter, r *http.Request) {
	tmpl := template.Must(template.New("docs").Parse(apiDocsHTML))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl.Execute(w, nil)
}
