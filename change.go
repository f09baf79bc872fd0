package main

type catalogObservation struct {
	// Changed is set only when a previous snapshot existed and differs.
	Changed bool
	// Initial is set on the very first observation of the process.
	Initial bool
	Next    string
}

// observeCatalog compares two raw catalog payloads byte for byte.
func observeCatalog(previous *string, current string) catalogObservation {
	if previous == nil {
		return catalogObservation{Initial: true, Next: current}
	}
	return catalogObservation{Changed: *previous != current, Next: current}
}
