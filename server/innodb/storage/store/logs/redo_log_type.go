package logs

const (
	/* Logging modes for a mini-transaction */
	MTR_LOG_ALL = 21
	/* default mode: log all operations
	modifying disk-based data */
	MTR_LOG_NONE    = 22 /* log no operations */
	MTR_LOG_NO_REDO = 23 /* Don't generate REDO */

	/* Types for the mlock objects to store in the mtr memo. These are
	bit flags so that a memo lookup can accept several latch modes. */
	MTR_MEMO_PAGE_S_FIX  = 1
	MTR_MEMO_PAGE_X_FIX  = 2
	MTR_MEMO_PAGE_SX_FIX = 4
	MTR_MEMO_BUF_FIX     = 8
	MTR_MEMO_MODIFY      = 16

	/** @name Log item types
	  The log items are declared 'byte' so that the compiler can warn if val
	  and type parameters are switched in a call to mlog_write_ulint. NOTE!
	  For 1 - 8 bytes, the flag value must give the length also! @{ */
	MLOG_1BYTE  = (1) /*!< one byte is written */
	MLOG_2BYTES = (2) /*!< 2 bytes ... */
	MLOG_4BYTES = (4) /*!< 4 bytes ... */
	MLOG_8BYTES = (8) /*!< 8 bytes ... */

	MLOG_WRITE_STRING = (30) /*!< write a string to
	a page */
	MLOG_MEMSET = (54) /*!< fill a byte range of
	a page with one value */
	MLOG_MEMMOVE = (55) /*!< copy a byte range within
	the same page; payload is the
	source offset */
	MLOG_BIGGEST_TYPE = (55) /*!< biggest value (used in
	assertions) */
	/* @} */
)
