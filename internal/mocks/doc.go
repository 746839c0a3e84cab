// Package mocks provides centralized mock implementations for testing.
//
// Mocks are plain structs with function fields for every method, so each
// test scripts only the behavior it cares about:
//
//	import "github.com/phrazzld/batchrun/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    sessions := &mocks.MockSessionPool{
//	        SubmitFn: func(ctx context.Context, req *remote.Request) (remote.Result, error) {
//	            return nil, &remote.Error{Kind: remote.KindQuery, Code: "23505"}
//	        },
//	    }
//
//	    // Use the mock in your test...
//	}
//
// Call counts and submitted requests are recorded for verification.
package mocks
