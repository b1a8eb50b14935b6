// Package server exposes HTTP handlers, including WebSocket upgrades, uploads,
// health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/room"
	"github.com/Tyrowin/minichat/internal/upload"
)

const (
	// multipartOverhead is the allowance for boundaries and form fields on top of
	// the upload ceiling.
	multipartOverhead = 1 << 20
	multipartMemory   = 1 << 20
)

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, registers the connection with the hub, and starts the client's
// read/write pumps. A username query parameter joins the room immediately.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	rc, err := s.hub.Connect(uuid.NewString())
	if err != nil {
		s.logger.Warn("rejecting connection", zap.String("remote", r.RemoteAddr), zap.Error(err))
		rejectConnection(conn)
		return
	}

	client := NewClient(conn, s.hub, rc, s.store, r.RemoteAddr, &s.cfg, s.logger)

	var joinName *string
	if values, ok := r.URL.Query()["username"]; ok {
		name := values[0]
		joinName = &name
	}

	if !s.startPumps(client, joinName) {
		s.hub.Leave(rc.ID())
		rejectConnection(conn)
	}
}

func rejectConnection(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// healthResponse is the JSON body of the health endpoint.
type healthResponse struct {
	Status           string `json:"status"`
	ConnectedClients int    `json:"connected_clients"`
	Online           int    `json:"online"`
	History          int    `json:"history"`
}

// HealthHandler provides a health check endpoint that reports room occupancy.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "healthy",
		ConnectedClients: s.hub.ConnectionCount(),
		Online:           len(s.hub.OnlineNames()),
		History:          len(s.hub.History()),
	}, s.logger)
}

// uploadResponse is returned for an accepted upload.
type uploadResponse struct {
	upload.Stored
	Message room.Message `json:"message"`
}

// UploadHandler accepts a multipart upload from a joined connection, stores it
// and announces it in the room. Rejected uploads never reach the room.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Upload endpoint only accepts POST requests.", http.StatusMethodNotAllowed)
		return
	}

	limit := s.store.MaxBytes()
	if r.ContentLength > limit+multipartOverhead {
		s.rejectUpload(w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			s.rejectUpload(w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge)
			return
		}
		s.rejectUpload(w, http.StatusBadRequest, err)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	connID := r.FormValue("connection_id")
	if !s.hub.IsJoined(connID) {
		s.rejectUpload(w, http.StatusForbidden, room.ErrNotJoined)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.rejectUpload(w, http.StatusBadRequest, fmt.Errorf("read form file: %w", err))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	if header.Size > limit {
		s.rejectUpload(w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge)
		return
	}

	stored, err := s.store.Save(header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			s.rejectUpload(w, http.StatusRequestEntityTooLarge, err)
		case errors.Is(err, upload.ErrUnsupportedType), errors.Is(err, upload.ErrEmptyUpload):
			s.rejectUpload(w, http.StatusUnsupportedMediaType, err)
		default:
			s.logger.Error("store upload", zap.Error(err))
			s.rejectUpload(w, http.StatusInternalServerError, errors.New("upload failed"))
		}
		return
	}

	msg, err := s.bridge.Submit(upload.Descriptor{
		SenderID:     connID,
		StoredRef:    stored.Ref,
		MediaKind:    stored.MediaKind,
		OriginalName: stored.OriginalName,
		SizeBytes:    stored.Size,
	})
	if err != nil {
		s.store.Remove(stored.Ref)
		if errors.Is(err, room.ErrNotJoined) {
			s.rejectUpload(w, http.StatusForbidden, err)
			return
		}
		s.logger.Error("announce upload", zap.Error(err))
		s.rejectUpload(w, http.StatusInternalServerError, errors.New("upload failed"))
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{Stored: stored, Message: msg}, s.logger)
}

func (s *Server) rejectUpload(w http.ResponseWriter, status int, err error) {
	s.logger.Info("upload rejected", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("write JSON response", zap.Error(err))
	}
}

// TestPageHandler serves an HTML test page for exercising the chat room.
// It provides a simple web interface to join, send text, upload files, and
// view real-time room events.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Warn("write HTML response", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>MiniChat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #online { color: #555; margin: 5px 0; }
        input[type="text"] {
            width: 300px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .system { color: gray; font-style: italic; }
        .error { color: #b00020; }
    </style>
</head>
<body>
    <h1>MiniChat Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Your name">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>
    <div id="online"></div>

    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <input type="file" id="fileInput" disabled>
        <button id="uploadButton" onclick="uploadFile()" disabled>Upload</button>
    </div>

    <script>
        let ws = null;
        let connectionId = null;
        const messagesDiv = document.getElementById('messages');
        const onlineDiv = document.getElementById('online');
        const nameInput = document.getElementById('nameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const fileInput = document.getElementById('fileInput');
        const uploadButton = document.getElementById('uploadButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            if (cls) { el.className = cls; }
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
            return el;
        }

        function renderMessage(m) {
            const time = new Date(m.timestamp).toLocaleTimeString();
            if (m.kind === 'system') {
                addLine('[' + time + '] ' + m.body, 'system');
                return;
            }
            if (m.kind === 'text') {
                addLine('[' + time + '] ' + m.sender + ': ' + m.body);
                return;
            }
            const el = addLine('[' + time + '] ' + m.sender + ': ');
            if (m.kind === 'image') {
                const img = document.createElement('img');
                img.src = m.fileRef;
                img.style.maxWidth = '200px';
                el.appendChild(img);
            } else {
                const a = document.createElement('a');
                a.href = m.fileRef;
                a.textContent = m.name || m.fileRef;
                el.appendChild(a);
            }
        }

        function renderOnline(names) {
            onlineDiv.textContent = 'Online: ' + names.join(', ');
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            fileInput.disabled = !connected;
            uploadButton.disabled = !connected;
            nameInput.disabled = connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?username=' + encodeURIComponent(nameInput.value));

            ws.onopen = function() { updateStatus(true); };

            ws.onmessage = function(event) {
                const ev = JSON.parse(event.data);
                switch (ev.type) {
                case 'welcome':
                    connectionId = ev.welcome.id;
                    addLine('Joined as ' + ev.welcome.name, 'system');
                    (ev.welcome.history || []).forEach(renderMessage);
                    renderOnline(ev.welcome.onlineNames || []);
                    break;
                case 'message':
                    renderMessage(ev.message);
                    break;
                case 'presence':
                    renderOnline(ev.presence.onlineNames || []);
                    break;
                case 'error':
                    addLine('Error: ' + ev.error, 'error');
                    break;
                }
            };

            ws.onclose = function() {
                addLine('Connection closed', 'system');
                updateStatus(false);
                ws = null;
                connectionId = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const body = messageInput.value.trim();
            if (body && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'text', body: body}));
                messageInput.value = '';
            }
        }

        function uploadFile() {
            if (!connectionId || fileInput.files.length === 0) { return; }
            const form = new FormData();
            form.append('connection_id', connectionId);
            form.append('file', fileInput.files[0]);
            fetch('/upload', {method: 'POST', body: form})
                .then(function(resp) {
                    if (!resp.ok) {
                        return resp.json().then(function(body) { addLine('Upload failed: ' + body.error, 'error'); });
                    }
                    fileInput.value = '';
                });
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
