package benchmarks

import (
	"io"
	"log/slog"
	"testing"

	"github.com/randalmurphal/eventcore/pkg/eventcore/event"
)

type Auditable interface {
	event.Event
	AuditTrail() string
}

type LedgerEvent struct {
	event.Base
	Account string
}

type FundsMoved struct {
	LedgerEvent
	Amount int
}

func (FundsMoved) AuditTrail() string { return "funds" }

type FundsReversed struct {
	FundsMoved
	Reason string
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newAggregator(b *testing.B) *event.Aggregator {
	b.Helper()
	agg := event.NewAggregator(event.WithLogger(quiet))
	b.Cleanup(agg.Close)
	return agg
}

// must panics on a subscription error during setup.
func must(_ func(), err error) {
	if err != nil {
		panic(err)
	}
}
