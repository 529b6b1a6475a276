// Package core holds the client session runtime: the credential store, the
// route classifier, the single-flight refresh coordinator and the pipeline
// that attaches credentials and replays requests after a refresh. Transport,
// endpoint and storage adapters depend on this package; core depends on none
// of them.
package core
