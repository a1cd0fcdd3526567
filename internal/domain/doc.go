// Package domain defines the core domain types and interfaces.
//
// Documents, user profiles, connection identifiers and the real-time event vocabulary live here,
// together with the DocumentStore port that every persistence adapter implements. No implementation code.
package domain
