// Package web holds the gateway's HTML front end assets.
//
// Page templates and the stylesheet are embedded into the binary with
// go:embed, so the gateway has no runtime dependency on external files.
// Renderer executes one page per request; StaticHandler serves /static/.
package web
