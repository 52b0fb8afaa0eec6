package internal

import "os"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	logOut  *os.File
	resolve Resolver
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects logs, e.g. to stderr when stdout carries a protocol
// or a report.
func WithLogOutput(f *os.File) Option {
	return func(a *application) {
		a.logOut = f
	}
}

// WithResolver answers "ask" import conflicts.
func WithResolver(r Resolver) Option {
	return func(a *application) {
		a.resolve = r
	}
}

func newApplication(opts []Option) *application {
	app := &application{version: "dev", logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	return app
}
