// hosting/template/wrapper.go
package template

import (
	"bytes"
	"fmt"
	"text/template"
)

// serverScaffold is the Node.js wrapper every submitted game is embedded into.
// It serves the game loop over HTTP on $PORT, exposes a health endpoint, and
// heartbeats to the matchmaker so the server stays discoverable while alive.
const serverScaffold = `// Generated game server scaffold. Do not edit.
'use strict';

const http = require('http');

const PORT = parseInt(process.env.PORT || '3000', 10);
const SERVER_ID = process.env.SERVER_ID || '';
const SERVER_NAME = process.env.SERVER_NAME || {{printf "%q" .GameName}};
const MATCHMAKER_URL = process.env.MATCHMAKER_URL || '';
const HEARTBEAT_INTERVAL_MS = parseInt(process.env.HEARTBEAT_INTERVAL_MS || '5000', 10);

// ---- user game code ----
{{.UserCode}}
// ---- end user game code ----

const game = (typeof module.exports === 'object' && module.exports) || {};
let currentPlayers = 0;

const server = http.createServer((req, res) => {
  if (req.url === '/healthz') {
    res.writeHead(200, { 'Content-Type': 'application/json' });
    res.end(JSON.stringify({ ok: true, players: currentPlayers }));
    return;
  }
  if (typeof game.handleRequest === 'function') {
    game.handleRequest(req, res);
    return;
  }
  res.writeHead(200, { 'Content-Type': 'text/plain' });
  res.end(SERVER_NAME + ' is running\n');
});

function heartbeat() {
  if (!MATCHMAKER_URL || !SERVER_ID) return;
  if (typeof game.playerCount === 'function') {
    currentPlayers = game.playerCount();
  }
  const body = JSON.stringify({ currentPlayers });
  fetch(MATCHMAKER_URL + '/matchmaker/servers/' + SERVER_ID + '/heartbeat', {
    method: 'PUT',
    headers: { 'Content-Type': 'application/json' },
    body,
  }).catch((err) => console.error('heartbeat failed:', err.message));
}

server.listen(PORT, () => {
  console.log(SERVER_NAME + ' listening on ' + PORT);
  if (typeof game.start === 'function') game.start(server);
  setInterval(heartbeat, HEARTBEAT_INTERVAL_MS);
  heartbeat();
});
`

// dockerfileScaffold is the build descriptor generated alongside the wrapped
// source. The base image and exposed port come from service configuration.
const dockerfileScaffold = `FROM {{.BaseImage}}
WORKDIR /srv
COPY server.js ./
EXPOSE {{.ContainerPort}}
USER node
CMD ["node", "server.js"]
`

var (
	serverTmpl     = template.Must(template.New("server").Parse(serverScaffold))
	dockerfileTmpl = template.Must(template.New("dockerfile").Parse(dockerfileScaffold))
)

// Params are the inputs to Wrap.
type Params struct {
	UserCode      string
	GameName      string
	BaseImage     string
	ContainerPort int
}

// Wrap composes the submitted game code into a deployable build context:
// the wrapped server source plus a generated Dockerfile. It is a pure
// function of its parameters and performs no I/O.
func Wrap(p Params) (map[string][]byte, error) {
	var server bytes.Buffer
	if err := serverTmpl.Execute(&server, p); err != nil {
		return nil, fmt.Errorf("failed to render server scaffold: %w", err)
	}

	var dockerfile bytes.Buffer
	if err := dockerfileTmpl.Execute(&dockerfile, p); err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}

	return map[string][]byte{
		"server.js":  server.Bytes(),
		"Dockerfile": dockerfile.Bytes(),
	}, nil
}
