package metrics

type Counter interface {
	Inc()
}

// VenueCounter is a counter partitioned by venue.
type VenueCounter interface {
	Inc(venue string)
}

type Metrics struct {
	OrdersPlaced     VenueCounter
	OrdersFailed     VenueCounter
	OrdersCanceled   VenueCounter
	PartialSuccesses VenueCounter
	EndpointFailures Counter
	IDPoolRefills    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopVenueCounter struct{}

func (noopVenueCounter) Inc(string) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	v := noopVenueCounter{}
	return &Metrics{
		OrdersPlaced:     v,
		OrdersFailed:     v,
		OrdersCanceled:   v,
		PartialSuccesses: v,
		EndpointFailures: n,
		IDPoolRefills:    n,
	}
}
