// Package api exposes a DB over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /fields
//	POST /fields/{field}/vectors
//	GET  /fields/{field}/vectors/{id}
//	POST /fields/{field}/search
//	POST /save
//	GET  /metrics
//
// Every response carries an X-Request-ID header.
package api
