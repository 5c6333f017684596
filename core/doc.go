// Package core contains the submission domain: entities, the resubmission
// policy, session lifecycle and the submission store orchestration. Transport,
// credential and persistence adapters depend on this package; core must not
// depend on them.
package core
