// Package service exposes contexts over a small JSON HTTP API.
//
//	POST /speak   {"context_id": "...", "input": "seed text"}
//	POST /learn   {"context_id": "...", "input": ["line", ...]}
//	POST /ban     {"context_id": "...", "substrings": ["...", ...]}
//	POST /unban   {"context_id": "...", "substrings": ["...", ...]}
//	POST /drop    {"context_id": "..."}
//	GET  /healthz
//	GET  /metrics
//
// Raw input is tokenized here; the engine only ever sees token lists.
// Errors are returned as {"error": {"code": ..., "message": ...}}.
package service
