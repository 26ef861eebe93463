// Package model defines the identifier types shared by every layer of a field index.
package model
