package gqlrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Envelope is the transport-level GraphQL request: the document, the
// operation to run and the raw variables object.
type Envelope struct {
	Method      string
	ContentType string

	Query         string
	OperationName string
	// VariablesRaw is nil when the client sent no variables or null.
	VariablesRaw json.RawMessage

	DocumentSizeBytes int
}

type jsonPayload struct {
	Query         string          `json:"query"`
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

// DecodeEnvelope reads a GET query string, an application/graphql body or a
// JSON body. The body is rewound so the GraphQL handler can read it again.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, errors.New("request is nil")
	}
	env := Envelope{Method: r.Method, ContentType: r.Header.Get("Content-Type")}

	var err error
	switch {
	case r.Method == http.MethodGet:
		q := r.URL.Query()
		env.Query = q.Get("query")
		env.OperationName = q.Get("operationName")
		env.VariablesRaw = variablesOrNil([]byte(q.Get("variables")))
	case r.Method == http.MethodPost && r.Body != nil:
		err = decodeBody(r, &env)
	}
	env.DocumentSizeBytes = len(env.Query)
	return env, err
}

func decodeBody(r *http.Request, env *Envelope) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mediaType, _, parseErr := mime.ParseMediaType(env.ContentType)
	if parseErr != nil {
		mediaType = strings.TrimSpace(env.ContentType)
	}
	if mediaType == "application/graphql" {
		env.Query = string(body)
		return nil
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	var payload jsonPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return err
	}
	env.Query = payload.Query
	env.OperationName = payload.OperationName
	env.VariablesRaw = variablesOrNil(payload.Variables)
	return nil
}

func variablesOrNil(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
