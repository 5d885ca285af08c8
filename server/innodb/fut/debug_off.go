//go:build flst_nodebug

package fut

const debug = false
