package snap

// Default options for the background path.
const (
	DefaultMaxIterations  = 2
	DefaultSnapThreshold  = 24
	DefaultOperationLimit = 10000
)

// Options controls one optimizer run. Zero or negative fields take the
// defaults.
type Options struct {
	MaxIterations  int     `json:"maxIter,omitempty"`
	SnapThreshold  float64 `json:"snapThreshold,omitempty"`
	OperationLimit int     `json:"opLimit,omitempty"`
}

// DefaultOptions returns the options used off the control path.
func DefaultOptions() Options {
	return Options{
		MaxIterations:  DefaultMaxIterations,
		SnapThreshold:  DefaultSnapThreshold,
		OperationLimit: DefaultOperationLimit,
	}
}

// LegacyOptions returns the tighter options used when the optimizer runs
// synchronously against live pieces.
func LegacyOptions() Options {
	return Options{
		MaxIterations:  2,
		SnapThreshold:  20,
		OperationLimit: 2000,
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.SnapThreshold <= 0 {
		o.SnapThreshold = def.SnapThreshold
	}
	if o.OperationLimit <= 0 {
		o.OperationLimit = def.OperationLimit
	}
	return o
}
