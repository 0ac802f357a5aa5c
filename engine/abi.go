package engine

// Export names probed on instantiated modules. The canonical names come
// first; the legacy ones cover solver toolchains that predate them.
const (
	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"

	// Legacy names from pre-standardization toolchains
	legacyRealloc = "canonical_abi_realloc"
	legacyAlloc   = "allocate"
	simpleAlloc   = "alloc"
	legacyDealloc = "deallocate"
	simpleFree    = "free"

	// initializeExport is the WASI reactor entrypoint. Run once after
	// instantiation when the module exports it.
	initializeExport = "_initialize"
)
