// Package requestid correlates control requests with the dispatches they
// trigger. Middleware assigns an id per request and LoggerExtractor puts it
// on every record logged with the request context.
package requestid
