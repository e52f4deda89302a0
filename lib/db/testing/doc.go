// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the KVDB interface contract
//   - benchmark: Performance tests for the operations the local driver depends on
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(path string) db.KVDB {
//		return NewMyDatabase(path)
//	}
//
//	// Running the standard test suite
//	testing.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	testing.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
