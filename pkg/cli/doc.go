// Package cli implements the plugman command line.
//
//	plugman plan  --plugin-dir ./plugins       # show the load order
//	plugman load  --plugin-dir ./plugins       # run one load pass
//	plugman serve --addr 127.0.0.1:9464        # load, then serve introspection
//
// Every command reads PLUGMAN_* environment configuration first and applies
// flags on top of it.
package cli
