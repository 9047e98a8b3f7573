// Package mocks provides function-field test doubles shared across packages.
//
// MockGenerator implements generation.Generator. Each method delegates to the
// matching Fn field when set and falls back to a deterministic canned
// response otherwise, so tests only script the calls they care about:
//
//	gen := &mocks.MockGenerator{
//	    RefineFn: func(ctx context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error) {
//	        return "", generation.ResponseMetadata{}, generation.ErrTransientFailure
//	    },
//	}
package mocks
