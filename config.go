package annbind

import "github.com/hupe1980/annbind/capi"

// Metric selects the distance function of an index. The zero value is
// MetricCosine.
type Metric uint8

const (
	MetricCosine Metric = iota
	MetricInnerProduct
	MetricL2sq
	MetricHaversine
	MetricDivergence
	MetricPearson
	MetricHamming
	MetricTanimoto
	MetricSorensen
)

// String returns the canonical short name of the metric.
func (m Metric) String() string {
	return m.kind().String()
}

func (m Metric) kind() capi.MetricKind {
	switch m {
	case MetricInnerProduct:
		return capi.MetricIP
	case MetricL2sq:
		return capi.MetricL2sq
	case MetricHaversine:
		return capi.MetricHaversine
	case MetricDivergence:
		return capi.MetricDivergence
	case MetricPearson:
		return capi.MetricPearson
	case MetricHamming:
		return capi.MetricHamming
	case MetricTanimoto:
		return capi.MetricTanimoto
	case MetricSorensen:
		return capi.MetricSorensen
	default:
		return capi.MetricCos
	}
}

func metricFromKind(k capi.MetricKind) Metric {
	switch k {
	case capi.MetricIP:
		return MetricInnerProduct
	case capi.MetricL2sq:
		return MetricL2sq
	case capi.MetricHaversine:
		return MetricHaversine
	case capi.MetricDivergence:
		return MetricDivergence
	case capi.MetricPearson:
		return MetricPearson
	case capi.MetricHamming:
		return MetricHamming
	case capi.MetricTanimoto:
		return MetricTanimoto
	case capi.MetricSorensen:
		return MetricSorensen
	default:
		return MetricCosine
	}
}

// Quantization selects the scalar type vectors are stored as inside the
// engine. Inputs are always float32; narrower kinds trade recall for
// memory. The zero value is QuantizationF32.
type Quantization uint8

const (
	QuantizationF32 Quantization = iota
	QuantizationF64
	QuantizationF16
	QuantizationBF16
	QuantizationI8
	QuantizationB1
)

// String returns the canonical short name of the scalar kind.
func (q Quantization) String() string {
	return q.kind().String()
}

func (q Quantization) kind() capi.ScalarKind {
	switch q {
	case QuantizationF64:
		return capi.ScalarF64
	case QuantizationF16:
		return capi.ScalarF16
	case QuantizationBF16:
		return capi.ScalarBF16
	case QuantizationI8:
		return capi.ScalarI8
	case QuantizationB1:
		return capi.ScalarB1
	default:
		return capi.ScalarF32
	}
}

func quantizationFromKind(k capi.ScalarKind) Quantization {
	switch k {
	case capi.ScalarF64:
		return QuantizationF64
	case capi.ScalarF16:
		return QuantizationF16
	case capi.ScalarBF16:
		return QuantizationBF16
	case capi.ScalarI8:
		return QuantizationI8
	case capi.ScalarB1:
		return QuantizationB1
	default:
		return QuantizationF32
	}
}

// Tuning defaults applied by DefaultConfig and by the engine when a
// field is left zero.
const (
	DefaultConnectivity    = 16
	DefaultExpansionAdd    = 128
	DefaultExpansionSearch = 64
)

// IndexConfig describes an index. It doubles as the metadata record:
// Metadata and MetadataFromFile return one decoded from a snapshot.
type IndexConfig struct {
	// Dimensions is the vector width. Required.
	Dimensions int

	Metric       Metric
	Quantization Quantization

	// Connectivity bounds the neighbors kept per graph node.
	Connectivity int

	// ExpansionAdd and ExpansionSearch size the candidate pools during
	// construction and queries. Larger is slower and more accurate.
	ExpansionAdd    int
	ExpansionSearch int

	// Multi allows several vectors under one key.
	Multi bool
}

// DefaultConfig returns a cosine/f32 configuration with standard tuning
// for the given vector width.
func DefaultConfig(dimensions int) IndexConfig {
	return IndexConfig{
		Dimensions:      dimensions,
		Metric:          MetricCosine,
		Quantization:    QuantizationF32,
		Connectivity:    DefaultConnectivity,
		ExpansionAdd:    DefaultExpansionAdd,
		ExpansionSearch: DefaultExpansionSearch,
	}
}

func (c IndexConfig) initOptions() *capi.InitOptions {
	return &capi.InitOptions{
		Metric:          c.Metric.kind(),
		Quantization:    c.Quantization.kind(),
		Dimensions:      uint64(c.Dimensions),
		Connectivity:    uint64(c.Connectivity),
		ExpansionAdd:    uint64(c.ExpansionAdd),
		ExpansionSearch: uint64(c.ExpansionSearch),
		Multi:           c.Multi,
	}
}

func configFromOptions(o *capi.InitOptions) IndexConfig {
	return IndexConfig{
		Dimensions:      int(o.Dimensions),
		Metric:          metricFromKind(o.Metric),
		Quantization:    quantizationFromKind(o.Quantization),
		Connectivity:    int(o.Connectivity),
		ExpansionAdd:    int(o.ExpansionAdd),
		ExpansionSearch: int(o.ExpansionSearch),
		Multi:           o.Multi,
	}
}
