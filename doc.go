/*
Package http1server is a small HTTP/1.1 origin server with a bounded worker
pool, a security gate in front of every request and built-in metrics.

Features

  - HTTP/1.1 request parsing with strict header and size limits
  - Persistent connections with idle timeout and a per-connection request cap
  - Bounded worker pool; saturation is answered with 503 and Retry-After
  - Per-client token bucket rate limiting
  - Host header validation against the listening port
  - Static files from a document root with traversal protection
  - JSON uploads stored under the document root
  - CORS preflight handling
  - Prometheus metrics and a security dashboard (HTML and JSON)

Quick Start

	http1-server 8080 0.0.0.0 16 --root ./www

or programmatically:

	package main

	import (
	    "context"
	    "log"

	    "github.com/searchktools/http1-server/app"
	    "github.com/searchktools/http1-server/config"
	)

	func main() {
	    cfg, err := config.Load("")
	    if err != nil {
	        log.Fatal(err)
	    }
	    a, err := app.New(cfg)
	    if err != nil {
	        log.Fatal(err)
	    }
	    if err := a.Run(context.Background()); err != nil {
	        log.Fatal(err)
	    }
	}

Architecture

  - app: lifecycle, signals and graceful shutdown
  - config: defaults, YAML file and HTTP1_* environment overrides
  - core: listener, accept loop and the per-connection state machine
  - core/http: wire reader, parser and response builder
  - core/middleware: rate limit, size limit and Host checks
  - core/static: path resolution under the document root
  - core/upload: JSON upload store
  - core/cors: CORS policy
  - core/pools: worker pool, byte buffers and GC settings
  - core/observability: metrics collector and security dashboard
  - logging: application and security event logging
*/
package http1server
