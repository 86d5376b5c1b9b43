// Package plugins discovers plugin bundles, orders them by their declared
// dependencies and loads them into a process-wide registry.
//
// # Overview
//
// A load pass runs in four steps:
//
//	discovery   -> DirectoryDiscoverer finds bundle directories holding a manifest
//	metadata    -> ManifestReader parses plugin.yaml into a Descriptor
//	resolution  -> Resolve orders descriptors so dependencies load first
//	loading     -> Loader instantiates, activates and registers each plugin
//
// Plugins whose dependencies are missing, cyclic or themselves excluded are
// left out of the order and reported in the LoadReport. The first
// instantiation or activation failure aborts the pass; plugins loaded before
// it remain registered.
//
// # Usage
//
//	manager := plugins.SharedInstance()
//	if err := manager.LoadAllPlugins(ctx); err != nil {
//		var loadErr *plugins.LoadError
//		if errors.As(err, &loadErr) {
//			log.Printf("plugin %s failed", loadErr.ID)
//		}
//	}
//	if p, ok := manager.PluginForIdentifier("com.example.core"); ok {
//		use(p)
//	}
//
// # Manifest
//
//	id: com.example.audit
//	name: Audit Trail
//	version: 1.2.0
//	principal: NewAuditPlugin
//	library: audit.so
//	dependencies:
//	  - com.example.core
//
// Bundles without a library are built by factories registered with a
// FactoryInstantiator under the manifest's principal name (or its id).
//
// # Related Packages
//
//   - pkg/config: Search directories and discovery settings
//   - pkg/observability: Logging, metrics and tracing for load passes
package plugins
