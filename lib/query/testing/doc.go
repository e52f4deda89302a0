// Package testing provides a conformance suite for query.IBackend implementations.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//		testing.RunBackendTests(t, "MyBackend", func(t *testing.T) query.IBackend {
//			backend, err := NewMyBackend(t.TempDir())
//			require.NoError(t, err)
//			return backend
//		})
//	}
package testing
