// Package core contains the credential refresh coordination and retry
// protocol: the credential store, the failure classifier, the single-flight
// refresh coordinator, the request pipeline, and failure escalation.
// Transport, persistence, and provider adapters live in sibling packages and
// depend on core; core must not depend on them.
package core
