// Package batch fetches detail records for ID lists larger than the service's
// per-request ID limit.
//
// Azure DevOps caps batch endpoints such as workitemsbatch at 200 IDs. A WIQL
// query can easily return more, so callers split the list with Plan and fetch
// each chunk through the dispatcher:
//
//	items, err := batch.FetchInChunks(ctx, ids, batch.DefaultChunkSize,
//		func(ctx context.Context, chunk []int) ([]WorkItem, error) {
//			return svc.fetchBatch(ctx, chunk)
//		})
//
// Chunks run one after another, never in parallel, so a large fetch queues behind
// other work instead of flooding the shared rate budget. Results keep input order.
// The first failed chunk fails the whole fetch and discards what was collected.
package batch
