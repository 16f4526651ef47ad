// Package domain holds the federation value objects: entity identifiers,
// key sets, entity statements, subordinate statements, trust marks, trust
// chains and the metadata policy language.
//
// Types in this package hold validated data and enforce their own
// invariants. Parsing and signature verification of the wire form
// (compact JWS) is delegated to the codec package; network access is
// delegated to adapters behind the ports package.
package domain
