// Package registry maps field names to their index configuration.
//
// Every field without an explicit entry uses the registry default. A field's
// configuration is frozen the first time the field receives a vector; after
// that the graph's topology depends on it and it can no longer change.
//
// Registries can be declared in YAML:
//
//	default:
//	  metric: euclidean
//	  m: 16
//	  ef_construction: 100
//	fields:
//	  description_vector:
//	    m: 32
//	    ef_construction: 150
package registry
