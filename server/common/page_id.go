package common

import "fmt"

// PageID identifies a page by tablespace id and page number.
type PageID struct {
	Space  uint32
	PageNo uint32
}

func NewPageID(space, pageNo uint32) PageID {
	return PageID{Space: space, PageNo: pageNo}
}

// Fold packs the id into a single key, space id in the high half.
func (id PageID) Fold() uint64 {
	return uint64(id.Space)<<32 | uint64(id.PageNo)
}

func (id PageID) String() string {
	return fmt.Sprintf("[page id: space=%d, page number=%d]", id.Space, id.PageNo)
}
