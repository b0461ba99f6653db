package fuzzgen

// OpWeights sets the relative draw weight per operation. A zero weight
// disables the operation.
type OpWeights struct {
	Insert      int `yaml:"insert" envconfig:"FUZZ_WEIGHT_INSERT"`
	BatchInsert int `yaml:"batch_insert" envconfig:"FUZZ_WEIGHT_BATCH_INSERT"`
	Search      int `yaml:"search" envconfig:"FUZZ_WEIGHT_SEARCH"`
	BatchSearch int `yaml:"batch_search" envconfig:"FUZZ_WEIGHT_BATCH_SEARCH"`
	Delete      int `yaml:"delete" envconfig:"FUZZ_WEIGHT_DELETE"`
	Mixed       int `yaml:"mixed" envconfig:"FUZZ_WEIGHT_MIXED"`
}

type Config struct {
	Collection string `yaml:"collection" envconfig:"FUZZ_COLLECTION"`

	// Dimension is the nominal vector width the target collections are
	// created with. Generated vectors deviate from it only through the
	// wrong-dimension edge case.
	Dimension int `yaml:"dimension" envconfig:"FUZZ_DIMENSION"`

	MaxBatch int `yaml:"max_batch" envconfig:"FUZZ_MAX_BATCH"`
	MaxK     int `yaml:"max_k" envconfig:"FUZZ_MAX_K"`

	// Probability knobs. All are per-draw probabilities in [0, 1].
	EdgeValueProb      float64 `yaml:"edge_value_prob" envconfig:"FUZZ_EDGE_VALUE_PROB"`
	EmptyVectorProb    float64 `yaml:"empty_vector_prob" envconfig:"FUZZ_EMPTY_VECTOR_PROB"`
	WrongDimensionProb float64 `yaml:"wrong_dimension_prob" envconfig:"FUZZ_WRONG_DIMENSION_PROB"`
	MalformedIDProb    float64 `yaml:"malformed_id_prob" envconfig:"FUZZ_MALFORMED_ID_PROB"`
	MetadataProb       float64 `yaml:"metadata_prob" envconfig:"FUZZ_METADATA_PROB"`
	MissingCollProb    float64 `yaml:"missing_collection_prob" envconfig:"FUZZ_MISSING_COLLECTION_PROB"`

	Weights OpWeights `yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{
		Collection:         "fuzz_collection",
		Dimension:          8,
		MaxBatch:           16,
		MaxK:               20,
		EdgeValueProb:      0.10,
		EmptyVectorProb:    0.05,
		WrongDimensionProb: 0.05,
		MalformedIDProb:    0.10,
		MetadataProb:       0.30,
		MissingCollProb:    0.02,
		Weights: OpWeights{
			Insert:      25,
			BatchInsert: 15,
			Search:      25,
			BatchSearch: 10,
			Delete:      15,
			Mixed:       10,
		},
	}
}

func (c *Config) Validate() error {
	if c.Dimension < 1 {
		return errInvalidDimension
	}
	if c.MaxBatch < 1 || c.MaxK < 1 {
		return errInvalidBounds
	}
	total := 0
	for _, w := range []int{
		c.Weights.Insert, c.Weights.BatchInsert, c.Weights.Search,
		c.Weights.BatchSearch, c.Weights.Delete, c.Weights.Mixed,
	} {
		if w < 0 {
			// A negative weight would let the weighted draw walk past
			// the table and silently skew toward the fallback.
			return errNegativeWeight
		}
		total += w
	}
	if total == 0 {
		return errNoOperations
	}
	return nil
}
