package alerts

import (
	"fmt"
	"strings"
)

type EventKind string

const (
	// PartialSuccess means the order transaction went out but its order id
	// could not be recovered.
	PartialSuccess EventKind = "partial_success"
	OrderFailed    EventKind = "order_failed"
)

type Event struct {
	Kind          EventKind
	Venue         string
	Pair          string
	Side          string
	ClientOrderID string
	TxID          string
	Err           error
}

func (e Event) Message() string {
	var b strings.Builder
	switch e.Kind {
	case PartialSuccess:
		b.WriteString("order submitted but unresolved")
	case OrderFailed:
		b.WriteString("order failed")
	default:
		b.WriteString(string(e.Kind))
	}
	fmt.Fprintf(&b, "\nvenue: %s\npair: %s", e.Venue, e.Pair)
	if e.Side != "" {
		fmt.Fprintf(&b, "\nside: %s", e.Side)
	}
	if e.ClientOrderID != "" {
		fmt.Fprintf(&b, "\ncloid: %s", e.ClientOrderID)
	}
	if e.TxID != "" {
		fmt.Fprintf(&b, "\ntx: %s", e.TxID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v", e.Err)
	}
	return b.String()
}
