// Package index provides a client for the quiver index protocol.
//
// # Protocol
//
// An index is a plain HTTP server (see pkg/mirror) with two endpoints:
//
//	GET /packages/{name}
//	    {"name": "flask", "versions": [
//	        {"version": "3.0.0",
//	         "requires": [{"name": "click", "constraint": ">=8.1"}],
//	         "digest": "sha256:...", "size": 101714,
//	         "filename": "flask-3.0.0-py3-none-any.whl"}]}
//
//	GET /artifacts/{name}/{version}
//	    raw artifact bytes
//
// Unknown packages answer 404. The digest in the package document is the
// one downloads are verified against.
//
// The same [PackageDoc] type is used by index files loaded by the mirror,
// in JSON or TOML form.
package index
