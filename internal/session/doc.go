// Package session bundles the registry, workflow manager, notification sink,
// asset provider and exporter behind one facade. The HTTP API and the
// one-shot CLI both drive the queue exclusively through a Session.
package session
