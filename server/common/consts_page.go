package common

// 页面大小
const (
	UNIV_PAGE_SIZE_MIN = 4096
	UNIV_PAGE_SIZE_DEF = 16384
	UNIV_PAGE_SIZE_MAX = 65536
)

// File page header (FIL header), 38 bytes at the start of every page.
const (
	FIL_PAGE_SPACE_OR_CHKSUM = 0  // 4 bytes, checksum of the page
	FIL_PAGE_OFFSET          = 4  // 4 bytes, page number
	FIL_PAGE_PREV            = 8  // 4 bytes
	FIL_PAGE_NEXT            = 12 // 4 bytes
	FIL_PAGE_LSN             = 16 // 8 bytes, LSN of the newest modification
	FIL_PAGE_TYPE            = 24 // 2 bytes
	FIL_PAGE_FILE_FLUSH_LSN  = 26 // 8 bytes
	FIL_PAGE_SPACE_ID        = 34 // 4 bytes
	FIL_PAGE_DATA            = 38 // start of the data area

	// 页尾 FIL trailer
	FIL_PAGE_END_LSN_OLD_CHKSUM = 8
	FIL_PAGE_DATA_END           = 8
)

// FIL_NULL is the page number meaning "no page".
const FIL_NULL uint32 = 0xFFFFFFFF

// File address layout: [page:4][offset:2].
const (
	FIL_ADDR_PAGE = 0
	FIL_ADDR_BYTE = 4
	FIL_ADDR_SIZE = 6
)

// File list base node layout.
const (
	FLST_LEN            = 0                   // 4 bytes, number of nodes
	FLST_FIRST          = 4                   // 6 bytes, first node address
	FLST_LAST           = 4 + FIL_ADDR_SIZE   // 6 bytes, last node address
	FLST_BASE_NODE_SIZE = 4 + 2*FIL_ADDR_SIZE // 16
	FLST_PREV           = 0                   // 6 bytes, previous node address
	FLST_NEXT           = FIL_ADDR_SIZE       // 6 bytes, next node address
	FLST_NODE_SIZE      = 2 * FIL_ADDR_SIZE   // 12
)

// 页面类型
const (
	FIL_PAGE_TYPE_ALLOCATED = 0x0000
	FIL_PAGE_UNDO_LOG       = 0x0002
	FIL_PAGE_INODE          = 0x0003
	FIL_PAGE_TYPE_FSP_HDR   = 0x0008
	FIL_PAGE_TYPE_XDES      = 0x0009
	FIL_PAGE_INDEX          = 0x45BF
)
