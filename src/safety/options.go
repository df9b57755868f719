package safety

// Options carries the global safety flags of a CLI run.
type Options struct {
	// DryRun reports planned changes without making them.
	DryRun bool
	// Yes answers every confirmation with yes.
	Yes bool
}
