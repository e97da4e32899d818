// Package pagination retrieves every page of an article search.
//
// The search API returns ten documents per page and reports the total hit
// count on each page. The fetcher requests page 0, derives the last page index
// from the hit count, then walks the remaining pages one at a time, pausing
// between requests so the account stays under its request quota.
//
// Example usage:
//
//	pacer := pacing.NewDelayPacer(pacing.DefaultDelay, logger)
//	fetcher := pagination.NewFetcher(searchClient, pacer, pagination.DefaultConfig(), logger)
//	result, err := fetcher.FetchAll(ctx, params)
//
// The fetcher:
//   - Rejects parameters that already select a page
//   - Fetches strictly sequentially, never in parallel
//   - Aborts on the first failed page and returns no documents
//   - Drops documents whose headline repeats an earlier one
package pagination
