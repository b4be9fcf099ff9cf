package models

// ErrorKind classifies a per-record error entry
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation_failure"
	ErrorKindNotFound   ErrorKind = "upstream_not_found"
	ErrorKindUpstream   ErrorKind = "upstream_failure"
	ErrorKindUnexpected ErrorKind = "unexpected_failure"
)

// ErrorEntry is the single shape every per-record failure is reduced to
type ErrorEntry struct {
	Key    string    `json:"key" yaml:"key"`
	Kind   ErrorKind `json:"kind" yaml:"kind"`
	Reason string    `json:"reason" yaml:"reason"`
}

// RecordOutcome is what converting a single legacy record produced
type RecordOutcome struct {
	Key              string
	Added            bool
	Updated          bool
	Errors           []ErrorEntry
	Programs         []string
	OptionalPrograms []string
	CareerPrograms   []string
}

// AddError appends an error entry for the outcome's key
func (o *RecordOutcome) AddError(kind ErrorKind, reason string) {
	o.Errors = append(o.Errors, ErrorEntry{Key: o.Key, Kind: kind, Reason: reason})
}

// ConversionSummary aggregates outcomes for a partition or a whole run.
// A summary is owned by one goroutine until it is merged.
type ConversionSummary struct {
	ReadCount        int64            `json:"readCount" yaml:"read_count"`
	ProcessedCount   int64            `json:"processedCount" yaml:"processed_count"`
	AddedCount       int64            `json:"addedCount" yaml:"added_count"`
	UpdatedCount     int64            `json:"updatedCount" yaml:"updated_count"`
	ErroredCount     int64            `json:"erroredCount" yaml:"errored_count"`
	Errors           []ErrorEntry     `json:"errors" yaml:"errors"`
	Programs         map[string]int64 `json:"programs" yaml:"programs"`
	OptionalPrograms map[string]int64 `json:"optionalPrograms" yaml:"optional_programs"`
	CareerPrograms   map[string]int64 `json:"careerPrograms" yaml:"career_programs"`
}

// NewConversionSummary returns an empty summary with initialized histograms
func NewConversionSummary() *ConversionSummary {
	return &ConversionSummary{
		Errors:           make([]ErrorEntry, 0),
		Programs:         make(map[string]int64),
		OptionalPrograms: make(map[string]int64),
		CareerPrograms:   make(map[string]int64),
	}
}

// RecordError appends an error entry and bumps the error counter
func (s *ConversionSummary) RecordError(entry ErrorEntry) {
	s.Errors = append(s.Errors, entry)
	s.ErroredCount++
}

// Record applies the outcome of one processed record
func (s *ConversionSummary) Record(o RecordOutcome) {
	s.ProcessedCount++
	switch {
	case o.Added:
		s.AddedCount++
	case o.Updated:
		s.UpdatedCount++
	}
	for _, e := range o.Errors {
		s.RecordError(e)
	}
	for _, code := range o.Programs {
		s.Programs[code]++
	}
	for _, code := range o.OptionalPrograms {
		s.OptionalPrograms[code]++
	}
	for _, code := range o.CareerPrograms {
		s.CareerPrograms[code]++
	}
}

// Add merges other into s. Counters are summed, errors concatenated and
// histograms merged key-wise.
func (s *ConversionSummary) Add(other *ConversionSummary) {
	if other == nil {
		return
	}
	s.ReadCount += other.ReadCount
	s.ProcessedCount += other.ProcessedCount
	s.AddedCount += other.AddedCount
	s.UpdatedCount += other.UpdatedCount
	s.ErroredCount += other.ErroredCount
	s.Errors = append(s.Errors, other.Errors...)
	s.Programs = mergeHistogram(s.Programs, other.Programs)
	s.OptionalPrograms = mergeHistogram(s.OptionalPrograms, other.OptionalPrograms)
	s.CareerPrograms = mergeHistogram(s.CareerPrograms, other.CareerPrograms)
}

// MergeSummaries returns a new summary holding the sum of all inputs
func MergeSummaries(summaries ...*ConversionSummary) *ConversionSummary {
	merged := NewConversionSummary()
	for _, s := range summaries {
		merged.Add(s)
	}
	return merged
}

// Consistent reports whether the counter invariants hold
func (s *ConversionSummary) Consistent() bool {
	return s.ProcessedCount <= s.ReadCount && s.AddedCount+s.UpdatedCount <= s.ProcessedCount
}

func mergeHistogram(dst, src map[string]int64) map[string]int64 {
	if dst == nil {
		dst = make(map[string]int64, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}
