package buffer_pool

// FetchMode tells Get how to treat a page another structure has freed.
type FetchMode uint8

const (
	// BUF_GET fails with ErrPageFreed on a freed page.
	BUF_GET FetchMode = iota
	// BUF_GET_POSSIBLY_FREED returns the page even if it was freed. Its file
	// list fields may be stale; readers that follow them rely on the list
	// invariants of the structure they came from.
	BUF_GET_POSSIBLY_FREED
	// BUF_GET_IF_IN_POOL never reads from storage.
	BUF_GET_IF_IN_POOL
)

func (m FetchMode) String() string {
	switch m {
	case BUF_GET:
		return "BUF_GET"
	case BUF_GET_POSSIBLY_FREED:
		return "BUF_GET_POSSIBLY_FREED"
	case BUF_GET_IF_IN_POOL:
		return "BUF_GET_IF_IN_POOL"
	}
	return "BUF_GET_UNKNOWN"
}
