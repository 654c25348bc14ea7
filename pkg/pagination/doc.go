// Package pagination walks cursor-chained partner API collections.
//
// The partner API pages large result sets with an opaque continuation
// token: a response may carry a NextToken, and the follow-up request
// must present it to get the next page. Tokens only exist once the
// previous page has arrived, so pages are fetched strictly in order.
//
// Example usage:
//
//	pager := pagination.NewPager(fetchOrders, 50)
//	for pager.More() {
//		page, err := pager.NextPage(ctx)
//		if err != nil {
//			return err
//		}
//		process(page.Records)
//	}
//
// The chain is lazy (nothing is fetched before NextPage), finite, and
// not restartable. A page ceiling guards against runaway token chains;
// hitting it ends the sequence with ErrTooManyPages after the pages
// already fetched have been yielded.
package pagination
