// Package resolve turns a logical image identifier into a URL that is known to load.
//
// For each identifier the Resolver probes a fixed, ordered list of candidate URLs
// (view, thumbnail, by-id, download), each under a timeout. When a credential is
// configured it can also fetch the raw bytes and materialize them into a local blob:
// once early, right after the first candidate fails, and once more after every
// candidate failed. If nothing works the view URL is returned anyway; resolution
// never fails.
//
// Batches are resolved one identifier at a time, in input order.
//
//	r := resolve.New(resolve.Options{Credential: os.Getenv("IMGCACHE_API_KEY")})
//	for _, res := range r.ResolveAll(ctx, items) {
//	    render(res.URL)
//	}
package resolve
