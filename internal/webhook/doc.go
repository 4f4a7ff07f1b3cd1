// Package webhook receives GitHub pull_request_review deliveries and turns
// approved reviews into spreadsheet rows.
//
// # Request Flow
//
//  1. Sender IP checked against GitHub's published hook ranges (optional)
//  2. HMAC-SHA256 signature verified over the raw body (constant-time)
//  3. X-GitHub-Event must be exactly pull_request_review
//  4. Body decoded as a single JSON document
//  5. review.state must be "approved", otherwise 200 {"speadsheet_updated": false}
//  6. Row extracted with the configured field spec
//  7. Row appended through the sink, whose acknowledgment is returned with 200
//
// # Error Responses
//
// Every failure answers 500 with {"error": "<message>"}. The failure kind
// (invalid_ip, invalid_signature, invalid_event, malformed_payload,
// missing_field, sink_failure) is logged with the delivery id but not sent.
// Signature failures never say which part of the signature was wrong.
//
// # Example Usage
//
//	cfg, err := webhook.FromGlobalConfig(globalCfg)
//	if err != nil {
//		return err
//	}
//	handler := webhook.NewHandler(cfg, rows, nil, logger)
//	server := webhook.New(cfg, handler, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
