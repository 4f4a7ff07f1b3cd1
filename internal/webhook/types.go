package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/mattjoyce/reviewsheet/internal/extract"
)

// Config holds the resolved settings the handler and server run with.
type Config struct {
	Listen string
	Path   string

	Secret          string
	SignatureHeader string
	EventHeader     string
	DeliveryHeader  string
	MaxBodySize     int64
	AcceptedEvents  []string

	// TrustProxyHeaders installs chi's RealIP middleware so the sender IP
	// comes from X-Forwarded-For / X-Real-IP instead of the socket.
	TrustProxyHeaders bool

	Fields    extract.Spec
	Separator string
}

// Request is one inbound delivery, independent of the HTTP transport.
type Request struct {
	Header   http.Header
	Body     []byte
	SenderIP string
}

// ErrorResponse is the JSON body of every failed delivery.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// Default values
const (
	DefaultPath            = "/"
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Hub-Signature-256"
	DefaultEventHeader     = "X-GitHub-Event"
	DefaultDeliveryHeader  = "X-GitHub-Delivery"
)

// notUpdatedBody acknowledges a delivery that was valid but not an approval.
// The key spelling matches what existing integrations already parse.
var notUpdatedBody = json.RawMessage(`{"speadsheet_updated":false}`)
