//go:build !flst_nodebug

package fut

// debug enables the latch and layout assertions of the list operations.
const debug = true
