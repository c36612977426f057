package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	EvaluationsRun     Counter
	OpportunitiesFound Counter
	AdmissionRejected  Counter
	AlertsSent         Counter
	AlertsSuppressed   Counter
	NotifyFailed       Counter
	FeedErrors         Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		EvaluationsRun:     n,
		OpportunitiesFound: n,
		AdmissionRejected:  n,
		AlertsSent:         n,
		AlertsSuppressed:   n,
		NotifyFailed:       n,
		FeedErrors:         n,
	}
}
