package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
)

const contentTypeProto = "application/x-protobuf"

var protoMediaTypes = map[string]bool{
	contentTypeProto:           true,
	"application/protobuf":     true,
	"application/octet-stream": true,
}

// isProtobuf reports whether the body is a protobuf message.  Parameters
// such as "; proto=google.protobuf.Struct" are ignored.
func isProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && protoMediaTypes[mt]
}

// readProto decodes the body into msg.  Oversized and malformed bodies are
// validation errors.
func readProto(w http.ResponseWriter, r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.WithMetadata(apperr.CodeValidation, "request body too large",
				map[string]any{"limit_bytes": tooBig.Limit})
		}
		return apperr.Wrap(apperr.CodeValidation, "unreadable request body", err)
	}
	if err := proto.Unmarshal(body, msg); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid protobuf body", err)
	}
	return nil
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProto)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
