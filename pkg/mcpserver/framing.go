package mcpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/errmodel"
)

// CodeMalformedMessage is the cause code of a framing error on a body that
// is not a JSON-RPC message.
const CodeMalformedMessage = "malformed_message"

const maxMessageBytes = 1 << 20

// sessionHeader carries the streamable session id.
const sessionHeader = "Mcp-Session-Id"

// readMessage reads the request body and checks that it decodes as one
// JSON-RPC message, or as a non-empty batch when batch is set. The body is
// returned so it can be handed on unchanged.
func readMessage(w http.ResponseWriter, r *http.Request, batch bool) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if batch && len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, malformed(err)
		}
		if len(raws) == 0 {
			return nil, malformed(errors.New("empty batch"))
		}
		for _, raw := range raws {
			if _, err := jsonrpc.DecodeMessage(raw); err != nil {
				return nil, malformed(err)
			}
		}
		return body, nil
	}
	if _, err := jsonrpc.DecodeMessage(trimmed); err != nil {
		return nil, malformed(err)
	}
	return body, nil
}

func malformed(err error) error {
	return errmodel.Validation(CodeMalformedMessage, "body is not a JSON-RPC message", map[string]any{"cause": err.Error()})
}

// guardFrames wraps the streamable handler. A POST whose body does not
// decode ends the session named by its Mcp-Session-Id header and is answered
// with a framing error; everything else reaches next with the body intact.
func (s *Server) guardFrames(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		body, err := readMessage(w, r, true)
		if err != nil {
			ferr := errmodel.Framing("malformed protocol message", err)
			id := r.Header.Get(sessionHeader)
			if sess, ss, ok := s.tracker.lookup(id); ok {
				if p, _ := auth.FromContext(r.Context()); p.ID() == sess.Principal.ID() {
					s.logger.WarnContext(r.Context(), "terminating session on framing error",
						slog.String("session", id),
						slog.Any("error", ferr),
					)
					_ = ss.Close()
				}
			}
			errmodel.WriteHTTP(w, r, ferr)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
