// Package registry provides the central "glue" for the module system.
//
// The Registry maps the names used on the command line (e.g. `-backend
// socketio`, `-store s3`) to the factories that open execution backends and
// run stores. Modules compiled into the binary register themselves at
// startup; nothing is registered implicitly.
package registry
