package model

// Reference data the confidence router resolves extracted names against.
// Managed by admin surfaces outside this system; the pipeline only reads it.

// Category is a product category (e.g. "Valves", "Dive Watches").
type Category struct {
	Name   string
	ID     int64
	Active bool
}

// Manufacturer is a known maker, with alternative names the community uses.
type Manufacturer struct {
	Name    string
	Aliases []string
	ID      int64
}

// Unit is a quantity unit (e.g. "pieces", abbreviated "pcs").
type Unit struct {
	Name   string
	Abbrev string
	ID     int64
}

// Condition describes item condition (e.g. "New Old Stock", abbreviated "NOS").
type Condition struct {
	Name   string
	Abbrev string
	ID     int64
	Active bool
}
